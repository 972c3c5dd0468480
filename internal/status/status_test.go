package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/ct/pkg/types"
)

func TestClassifyImplemented(t *testing.T) {
	src := "func Foo() int {\n\treturn 1\n}\n"
	assert.Equal(t, types.StatusImplemented, Classify(src))
}

func TestClassifyUnimplementedWinsOverTodo(t *testing.T) {
	src := "func Foo() {\n\t// TODO: flesh this out\n\tpanic(\"not implemented\")\n}\n"
	assert.Equal(t, types.StatusUnimplemented, Classify(src))
}

func TestClassifyTodoComment(t *testing.T) {
	src := "func Foo() {\n\t// TODO: flesh this out\n}\n"
	assert.Equal(t, types.StatusTodo, Classify(src))
}

func TestClassifyFixmeIsWordBounded(t *testing.T) {
	assert.Equal(t, types.StatusTodo, Classify("// FIXME later\n"))
	assert.Equal(t, types.StatusImplemented, Classify("// preFIXMEasurement\n"))
}
