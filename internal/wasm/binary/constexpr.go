package binary

import "github.com/bvisness/wasm-isolate/internal/wasm"

// decodeConstExpr decodes a constant initializer expression: a short
// instruction sequence terminated by `end`, used for global/table
// initializers and active-segment offsets.
func decodeConstExpr(r *reader) (wasm.ConstExpr, error) {
	ins, err := decodeExpr(r)
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	return wasm.ConstExpr{Instructions: ins}, nil
}

func encodeConstExpr(w *writer, e wasm.ConstExpr) error {
	return encodeExpr(w, e.Instructions)
}
