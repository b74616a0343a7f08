package kernel_test

import (
	"testing"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/kernel"
	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	global := kernel.NewScope(nil)
	global.Set("limit", &kernel.Entry{Register: 0, Type: ast.Number, Direction: kernel.Input})
	scope := kernel.NewScope(global)
	scope.Set("price", &kernel.Entry{Register: 2, Type: ast.Number})
	scope.Set("name", &kernel.Entry{Register: 1, Type: ast.String})
	scope.Set("price", &kernel.Entry{Register: 3, Type: ast.Number})

	assert.Equal(t, []string{"price", "name"}, scope.OwnKeys())
	assert.True(t, scope.Has("limit"))
	assert.False(t, scope.HasOwnKey("limit"))
	assert.Equal(t, 3, int(scope.Register("price")))
	assert.Equal(t, 0, int(scope.Register("limit")))
	assert.Same(t, global, scope.Parent())
}

func TestScopeMissingName(t *testing.T) {
	scope := kernel.NewScope(nil)
	scope.Set("name", &kernel.Entry{})
	scope.Set("price", &kernel.Entry{})
	assert.PanicsWithValue(t, `kernel: "prise" is not in scope (did you mean "price"?)`, func() {
		scope.Get("prise")
	})
	assert.PanicsWithValue(t, `kernel: "rating" is not in scope`, func() {
		scope.Get("rating")
	})
}
