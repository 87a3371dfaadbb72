package dwarftest

// Raw DWARF codes used by the encoders and by tests that need to spell
// them out.
const (
	TagCompileUnit       = 0x11
	TagBaseType          = 0x24
	TagSubprogram        = 0x2e
	TagVariable          = 0x34
	TagFormalParameter   = 0x05
	TagLexicalBlock      = 0x0b
	TagInlinedSubroutine = 0x1d

	AttrSibling        = 0x01
	AttrLocation       = 0x02
	AttrName           = 0x03
	AttrByteSize       = 0x0b
	AttrStmtList       = 0x10
	AttrLowpc          = 0x11
	AttrHighpc         = 0x12
	AttrLanguage       = 0x13
	AttrCompDir        = 0x1b
	AttrProducer       = 0x25
	AttrAbstractOrigin = 0x31
	AttrDeclLine       = 0x3b
	AttrExternal       = 0x3f
	AttrType           = 0x49
	AttrRanges         = 0x55
	AttrCallFile       = 0x58
	AttrCallLine       = 0x59
	AttrLinkageName    = 0x6e
	AttrStrOffsetsBase = 0x72
	AttrAddrBase       = 0x73

	FormAddr          = 0x01
	FormData1         = 0x0b
	FormData2         = 0x05
	FormData4         = 0x06
	FormData8         = 0x07
	FormString        = 0x08
	FormBlock1        = 0x0a
	FormFlag          = 0x0c
	FormSdata         = 0x0d
	FormStrp          = 0x0e
	FormUdata         = 0x0f
	FormRefAddr       = 0x10
	FormRef4          = 0x13
	FormIndirect      = 0x16
	FormSecOffset     = 0x17
	FormExprloc       = 0x18
	FormFlagPresent   = 0x19
	FormStrx          = 0x1a
	FormAddrx         = 0x1b
	FormRefSup4       = 0x1c
	FormData16        = 0x1e
	FormLineStrp      = 0x1f
	FormImplicitConst = 0x21
	FormStrx1         = 0x25

	LnsCopy        = 1
	LnsAdvancePC   = 2
	LnsAdvanceLine = 3
	LnsSetFile     = 4
	LnsNegateStmt  = 6
	LnsConstAddPC  = 8
	LneEndSequence = 1
	LneSetAddress  = 2
	LneDefineFile  = 3
)
