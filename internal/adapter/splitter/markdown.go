package splitter

// MarkdownSeparators orders markdown boundaries from headings down to
// single characters.
var MarkdownSeparators = []string{
	"\n# ",
	"\n## ",
	"\n### ",
	"\n#### ",
	"\n##### ",
	"\n###### ",
	"\n\n",
	"\n",
	". ",
	"! ",
	"? ",
	" ",
	"",
}

// NewMarkdown creates a splitter that prefers markdown structure. It
// always uses MarkdownSeparators.
func NewMarkdown(opts ...Option) (*TextSplitter, error) {
	opts = append(opts, WithSeparators(MarkdownSeparators...))
	return NewText(opts...)
}
