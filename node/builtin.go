package node

import (
	"context"
	"fmt"
	"strings"

	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

// EchoInterface is the interface name the built-in echo service is
// exported under.
const EchoInterface = "remotesvc.Echo"

// EchoService returns the built-in demo service:
//
//	echo(x)        -> x
//	upper(s)       -> s in upper case
//	sum(n, m, ...) -> the total, int64 unless a float is involved
func EchoService() registry.Methods {
	return registry.Methods{
		"echo":  echo,
		"upper": upper,
		"sum":   sum,
	}
}

func echo(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: echo takes 1 argument, got %d", ErrBadArgument, len(params))
	}
	return params[0], nil
}

func upper(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: upper takes 1 argument, got %d", ErrBadArgument, len(params))
	}
	s, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: upper wants a string, got %T", ErrBadArgument, params[0])
	}
	return strings.ToUpper(s), nil
}

func sum(ctx context.Context, params []any) (any, error) {
	var (
		total    int64
		fraction float64
		isFloat  bool
	)
	for i, p := range params {
		switch v := p.(type) {
		case int:
			total += int64(v)
		case int64:
			total += v
		case uint64:
			total += int64(v)
		case float32:
			isFloat = true
			fraction += float64(v)
		case float64:
			isFloat = true
			fraction += v
		default:
			return nil, fmt.Errorf("%w: argument %d is %T, not a number", ErrBadArgument, i, p)
		}
	}
	if isFloat {
		return float64(total) + fraction, nil
	}
	return total, nil
}
