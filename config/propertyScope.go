package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/hotel_migration/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PropertyScopePlugin scopes queries, updates and deletes to the property carried in the
// statement context when the model has a property_id column.
//
// NOTE:
// - Raw SQL is not rewritten. Those statements must filter property_id themselves.
// - Reference data reads opt out through appctx.ContextKeySkipPropertyScope.
type PropertyScopePlugin struct{}

func NewPropertyScopePlugin() *PropertyScopePlugin { return &PropertyScopePlugin{} }

func (p *PropertyScopePlugin) Name() string { return "property_scope" }

func (p *PropertyScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("property_scope:query", propertyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("property_scope:row", propertyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("property_scope:update", propertyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("property_scope:delete", propertyScopeCallback); err != nil {
		return err
	}
	return nil
}

func propertyScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if skip, ok := appctx.Get[bool](ctx, appctx.ContextKeySkipPropertyScope); ok && skip {
		return
	}
	propertyId := propertyIdFromContext(ctx)
	if propertyId <= 0 {
		return
	}
	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField("property_id") == nil {
		return
	}

	// an explicit filter wins
	if whereHasPropertyID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "property_id"},
				Value:  propertyId,
			},
		},
	})
}

func propertyIdFromContext(ctx context.Context) int {
	if v, ok := appctx.Get[int](ctx, appctx.ContextKeyPropertyId); ok {
		return v
	}
	return 0
}

func whereHasPropertyID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasPropertyID(e) {
			return true
		}
	}
	return false
}

func exprHasPropertyID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsPropertyID(v.Column)
	case clause.Neq:
		return colIsPropertyID(v.Column)
	case clause.IN:
		return colIsPropertyID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasPropertyID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasPropertyID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "property_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "property_id")
	default:
		return false
	}
}

func colIsPropertyID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "property_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "property_id")
	default:
		return false
	}
}
