package main

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

type contextKey uint8

const outputKey contextKey = iota

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey).(io.Writer); ok {
		return w
	}
	return os.Stdout
}

var (
	offsetColor   = color.New(color.FgYellow).SprintFunc()
	tagColor      = color.New(color.FgCyan, color.Bold).SprintFunc()
	attrColor     = color.New(color.FgGreen).SprintFunc()
	functionColor = color.New(color.FgBlue, color.Bold).SprintFunc()
	errorColor    = color.New(color.FgRed).SprintFunc()
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}
