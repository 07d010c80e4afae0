package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCodeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "int main() { return 0; }",
		NormalizeCode("int   main()\t{\n\treturn 0;\n}"))
}

func TestNormalizeCodeStripsComments(t *testing.T) {
	src := "int x; // counter\n/* unused\n   block */int y;"
	assert.Equal(t, "int x; int y;", NormalizeCode(src))
}

func TestNormalizeCodeKeepsCommentMarkersInLiterals(t *testing.T) {
	src := `printf("// not a comment");`
	assert.Equal(t, `printf("// not a comment");`, NormalizeCode(src))

	src = `char c = '/'; char d = '*';`
	assert.Equal(t, `char c = '/'; char d = '*';`, NormalizeCode(src))
}

func TestNormalizeCodeEscapedQuoteInString(t *testing.T) {
	src := `printf("say \"hi\" // still string");`
	assert.Equal(t, src, NormalizeCode(src))
}

func TestNormalizeCodeUnescapesArtifacts(t *testing.T) {
	// Starter code shipped through JSON sometimes carries literal escapes.
	assert.Equal(t, "int a; int b;", NormalizeCode(`int a;\nint b;`))
	assert.Equal(t, NormalizeCode("int a;\r\nint b;"), NormalizeCode(`int a;\r\nint b;`))
}

func TestStripCodeDropsBlankAndCommentLines(t *testing.T) {
	src := "int a;\n\n// gone\n   \nint b;  \n"
	assert.Equal(t, "int a;\nint b;", StripCode(src))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(""))
	assert.Equal(t, 0, CountLines("// only a comment"))
	assert.Equal(t, 1, CountLines("int a;"))
	assert.Equal(t, 2, CountLines("int a;\n// noise\nint b;"))
}

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "hello\nworld", NormalizeOutput("Hello  \r\nWorld\t\n\n"))
	assert.Equal(t, "", NormalizeOutput("   \n \t "))
	assert.Equal(t, "a\n\nb", NormalizeOutput("a\n\nb"))
}
