// Package filter provides AIP-160 filter expression parsing for directory
// event listings.
package filter

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// EventDeclarations returns the field declarations for event filtering.
func EventDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("type", filtering.TypeString),
		filtering.DeclareIdent("contact_id", filtering.TypeInt),
		filtering.DeclareIdent("wallet", filtering.TypeString),
	)
}

// ParseEventFilter parses an AIP-160 filter expression into an event query.
// Expressions combine equality matches with AND and OR; constraints on the
// same field union, constraints across fields intersect. Returns an empty
// query for an empty filter string.
func ParseEventFilter(filterStr string) (storage.EventQuery, error) {
	if strings.TrimSpace(filterStr) == "" {
		return storage.EventQuery{}, nil
	}

	decls, err := EventDeclarations()
	if err != nil {
		return storage.EventQuery{}, fmt.Errorf("create declarations: %w", err)
	}

	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return storage.EventQuery{}, fmt.Errorf("parse filter: %w", err)
	}

	var query storage.EventQuery
	if err := collectExpr(filter.CheckedExpr.Expr, &query); err != nil {
		return storage.EventQuery{}, err
	}
	return query, nil
}

func collectExpr(e *expr.Expr, query *storage.EventQuery) error {
	if e == nil {
		return nil
	}

	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}

	switch call.CallExpr.Function {
	case "_&&_", "AND", "_||_", "OR":
		if len(call.CallExpr.Args) != 2 {
			return fmt.Errorf("%s requires 2 arguments", call.CallExpr.Function)
		}
		if err := collectExpr(call.CallExpr.Args[0], query); err != nil {
			return err
		}
		return collectExpr(call.CallExpr.Args[1], query)
	case "_==_", "=":
		return collectEquals(call.CallExpr.Args, query)
	default:
		return fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
}

func collectEquals(args []*expr.Expr, query *storage.EventQuery) error {
	if len(args) != 2 {
		return fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return err
	}

	switch field {
	case "type":
		value, err := extractString(args[1])
		if err != nil {
			return err
		}
		eventType := storage.EventType(value)
		switch eventType {
		case storage.EventContactAdded, storage.EventContactUpdated, storage.EventContactRemoved:
		default:
			return fmt.Errorf("unknown event type: %s", value)
		}
		query.Types = append(query.Types, eventType)
	case "contact_id":
		value, err := extractInt(args[1])
		if err != nil {
			return err
		}
		if value <= 0 {
			return fmt.Errorf("contact_id must be positive")
		}
		query.ContactIDs = append(query.ContactIDs, uint64(value))
	case "wallet":
		value, err := extractString(args[1])
		if err != nil {
			return err
		}
		if !common.IsHexAddress(value) {
			return fmt.Errorf("invalid wallet address: %s", value)
		}
		query.Wallets = append(query.Wallets, common.HexToAddress(value))
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractString(e *expr.Expr) (string, error) {
	constant, err := extractConst(e)
	if err != nil {
		return "", err
	}
	value, ok := constant.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", constant.ConstantKind)
	}
	return value.StringValue, nil
}

func extractInt(e *expr.Expr) (int64, error) {
	constant, err := extractConst(e)
	if err != nil {
		return 0, err
	}
	switch kind := constant.ConstantKind.(type) {
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	default:
		return 0, fmt.Errorf("expected integer constant, got %T", kind)
	}
}

func extractConst(e *expr.Expr) (*expr.Constant, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	if kind.ConstExpr == nil {
		return nil, fmt.Errorf("nil constant")
	}
	return kind.ConstExpr, nil
}
