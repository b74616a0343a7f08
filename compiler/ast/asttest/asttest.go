// Package asttest builds small typed programs for compiler tests.
package asttest

import (
	"github.com/brimdata/ruleflow/compiler/ast"
)

func In(name string, typ ast.Type) *ast.ArgumentDef {
	return &ast.ArgumentDef{Name: name, Direction: ast.InReq, Type: typ}
}

func Opt(name string, typ ast.Type) *ast.ArgumentDef {
	return &ast.ArgumentDef{Name: name, Direction: ast.InOpt, Type: typ}
}

func Out(name string, typ ast.Type) *ast.ArgumentDef {
	return &ast.ArgumentDef{Name: name, Direction: ast.Out, Type: typ}
}

// Query returns a monitorable list query of class named name.
func Query(class, name string, args ...*ast.ArgumentDef) *ast.FunctionDef {
	return &ast.FunctionDef{
		Type:          ast.QueryFunction,
		Class:         class,
		Name:          name,
		Args:          args,
		IsList:        true,
		IsMonitorable: true,
	}
}

func Action(class, name string, args ...*ast.ArgumentDef) *ast.FunctionDef {
	return &ast.FunctionDef{
		Type:  ast.ActionFunction,
		Class: class,
		Name:  name,
		Args:  args,
	}
}

// Table returns an invocation table of schema with params bound.
func Table(schema *ast.FunctionDef, params ...*ast.InputParam) *ast.InvocationTable {
	return ast.NewInvocationTable(ast.NewInvocation(schema.Class, schema.Name, schema, params...))
}

// Products is @com.shop.products: a list of name and price.
func Products() *ast.InvocationTable {
	return Table(Query("com.shop", "products",
		Out("name", ast.String),
		Out("price", ast.Number),
	))
}

// Reviews is @com.shop.reviews(product): a list of ratings for one product.
func Reviews(params ...*ast.InputParam) *ast.InvocationTable {
	return Table(Query("com.shop", "reviews",
		In("product", ast.String),
		Out("rating", ast.Number),
		Out("text", ast.String),
	), params...)
}

// Headlines is @com.news.headlines: a list of titles and links.
func Headlines() *ast.InvocationTable {
	return Table(Query("com.news", "headlines",
		Out("title", ast.String),
		Out("link", &ast.Entity{Name: "tt:url"}),
	))
}

// Send is @com.mail.send(to, body).
func Send(params ...*ast.InputParam) *ast.InvocationAction {
	schema := Action("com.mail", "send",
		In("to", &ast.Entity{Name: "tt:email_address"}),
		In("body", ast.String),
	)
	return &ast.InvocationAction{Invocation: ast.NewInvocation(schema.Class, schema.Name, schema, params...)}
}

// Monitor returns the rule monitor(t) => notify.
func Monitor(t ast.Table) *ast.Rule {
	return &ast.Rule{
		Stream:  ast.NewMonitorStream(t),
		Actions: []ast.Action{ast.Notify},
	}
}

// Notify returns the command t => notify.
func Notify(t ast.Table) *ast.Command {
	return &ast.Command{
		Table:   t,
		Actions: []ast.Action{ast.Notify},
	}
}
