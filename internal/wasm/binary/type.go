package binary

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

const (
	compositeFuncByte   = 0x60
	compositeArrayByte  = 0x5e
	compositeStructByte = 0x5f

	subNonFinalByte = 0x50
	subFinalByte    = 0x4f
	recGroupByte    = 0x4e
)

func decodeFunctionType(r *reader) (wasm.FunctionType, error) {
	params, paramRefs, err := decodeValTypeVec(r)
	if err != nil {
		return wasm.FunctionType{}, err
	}
	results, resultRefs, err := decodeValTypeVec(r)
	if err != nil {
		return wasm.FunctionType{}, err
	}
	return wasm.FunctionType{Params: params, ParamRefs: paramRefs, Results: results, ResultRefs: resultRefs}, nil
}

func encodeFunctionType(w *writer, ft *wasm.FunctionType) error {
	if err := encodeValTypeVec(w, ft.Params, ft.ParamRefs); err != nil {
		return err
	}
	return encodeValTypeVec(w, ft.Results, ft.ResultRefs)
}

func decodeFields(r *reader) ([]wasm.FieldType, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	fields := make([]wasm.FieldType, n)
	for i := range fields {
		f, err := decodeFieldType(r)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return fields, nil
}

func decodeCompositeType(r *reader) (wasm.CompositeType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return wasm.CompositeType{}, err
	}
	switch b {
	case compositeFuncByte:
		ft, err := decodeFunctionType(r)
		if err != nil {
			return wasm.CompositeType{}, err
		}
		return wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &ft}, nil
	case compositeStructByte:
		fields, err := decodeFields(r)
		if err != nil {
			return wasm.CompositeType{}, err
		}
		return wasm.CompositeType{Kind: wasm.CompositeStruct, Struct: &wasm.StructType{Fields: fields}}, nil
	case compositeArrayByte:
		f, err := decodeFieldType(r)
		if err != nil {
			return wasm.CompositeType{}, err
		}
		return wasm.CompositeType{Kind: wasm.CompositeArray, Array: &wasm.ArrayType{Field: f}}, nil
	default:
		return wasm.CompositeType{}, fmt.Errorf("invalid composite type byte %#x", b)
	}
}

func encodeCompositeType(w *writer, c wasm.CompositeType) error {
	switch c.Kind {
	case wasm.CompositeFunc:
		w.writeByte(compositeFuncByte)
		return encodeFunctionType(w, c.Func)
	case wasm.CompositeStruct:
		w.writeByte(compositeStructByte)
		w.writeVecHeader(len(c.Struct.Fields))
		for _, f := range c.Struct.Fields {
			if err := encodeFieldType(w, f); err != nil {
				return err
			}
		}
		return nil
	case wasm.CompositeArray:
		w.writeByte(compositeArrayByte)
		return encodeFieldType(w, c.Array.Field)
	default:
		return fmt.Errorf("invalid composite kind %d", c.Kind)
	}
}

func decodeSubType(r *reader) (wasm.SubType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return wasm.SubType{}, err
	}
	if b != subNonFinalByte && b != subFinalByte {
		// Shorthand: a bare composite type is `sub final ε ct`.
		r.pos--
		ct, err := decodeCompositeType(r)
		if err != nil {
			return wasm.SubType{}, err
		}
		return wasm.SubType{Composite: ct, Final: true}, nil
	}
	n, err := r.readUint32()
	if err != nil {
		return wasm.SubType{}, err
	}
	supers := make([]uint32, n)
	for i := range supers {
		idx, err := r.readUint32()
		if err != nil {
			return wasm.SubType{}, err
		}
		supers[i] = idx
	}
	ct, err := decodeCompositeType(r)
	if err != nil {
		return wasm.SubType{}, err
	}
	return wasm.SubType{Composite: ct, Final: b == subFinalByte, Supertypes: supers}, nil
}

func encodeSubType(w *writer, s wasm.SubType, forceExplicit bool) error {
	if len(s.Supertypes) == 0 && s.Final && !forceExplicit {
		return encodeCompositeType(w, s.Composite)
	}
	if s.Final {
		w.writeByte(subFinalByte)
	} else {
		w.writeByte(subNonFinalByte)
	}
	w.writeVecHeader(len(s.Supertypes))
	for _, idx := range s.Supertypes {
		w.writeUint32(idx)
	}
	return encodeCompositeType(w, s.Composite)
}

func decodeTypeSection(r *reader) ([]wasm.SubType, []wasm.RecGroup, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, nil, err
	}
	var types []wasm.SubType
	groups := make([]wasm.RecGroup, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, nil, err
		}
		if b == recGroupByte {
			cnt, err := r.readUint32()
			if err != nil {
				return nil, nil, err
			}
			group := wasm.RecGroup{Explicit: true, Types: make([]wasm.SubType, cnt)}
			for j := uint32(0); j < cnt; j++ {
				st, err := decodeSubType(r)
				if err != nil {
					return nil, nil, err
				}
				group.Types[j] = st
				types = append(types, st)
			}
			groups = append(groups, group)
		} else {
			r.pos--
			st, err := decodeSubType(r)
			if err != nil {
				return nil, nil, err
			}
			types = append(types, st)
			groups = append(groups, wasm.RecGroup{Explicit: false, Types: []wasm.SubType{st}})
		}
	}
	return types, groups, nil
}

// encodeTypeSection emits the preserved rec groups, skipping groups with no
// live members and reconstructing singleton groups per the Emitter's rule:
// a lone survivor of a previously-implicit group emits bare, while a
// singleton survivor of an originally-explicit or multi-member group emits
// as an explicit one-member rec group. live reports whether the type at a
// given flattened TypeSection index survives; it is nil when emitting an
// unfiltered (non-isolated) module.
func encodeTypeSection(w *writer, groups []wasm.RecGroup, live func(flatIndex int) bool) {
	type liveGroup struct {
		explicit bool
		types    []wasm.SubType
	}
	var liveGroups []liveGroup
	flat := 0
	for _, g := range groups {
		var kept []wasm.SubType
		for _, st := range g.Types {
			idx := flat
			flat++
			if live == nil || live(idx) {
				kept = append(kept, st)
			}
		}
		if len(kept) == 0 {
			continue
		}
		explicit := g.Explicit || len(kept) > 1
		liveGroups = append(liveGroups, liveGroup{explicit: explicit, types: kept})
	}

	w.writeVecHeader(len(liveGroups))
	for _, g := range liveGroups {
		if g.explicit {
			w.writeByte(recGroupByte)
			w.writeVecHeader(len(g.types))
			for _, st := range g.types {
				_ = encodeSubType(w, st, false)
			}
		} else {
			_ = encodeSubType(w, g.types[0], false)
		}
	}
}
