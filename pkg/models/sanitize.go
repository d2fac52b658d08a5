package models

import (
	"math"
	"reflect"
)

// Sanitize walks v recursively and rewrites every float leaf that JSON cannot
// carry (NaN, ±Inf) to 0. It returns the number of leaves it rewrote.
// v must be a pointer; unexported fields are skipped.
func Sanitize(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0
	}
	return sanitizeValue(rv.Elem())
}

func sanitizeValue(v reflect.Value) int {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			if v.CanSet() {
				v.SetFloat(0)
				return 1
			}
		}
		return 0
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return 0
		}
		return sanitizeValue(v.Elem())
	case reflect.Struct:
		n := 0
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			n += sanitizeValue(v.Field(i))
		}
		return n
	case reflect.Slice, reflect.Array:
		n := 0
		for i := 0; i < v.Len(); i++ {
			n += sanitizeValue(v.Index(i))
		}
		return n
	case reflect.Map:
		// map values are not addressable; copy, fix and store back
		n := 0
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(iter.Value().Type()).Elem()
			elem.Set(iter.Value())
			if fixed := sanitizeValue(elem); fixed > 0 {
				v.SetMapIndex(iter.Key(), elem)
				n += fixed
			}
		}
		return n
	}
	return 0
}

// Normalize prepares a verdict for storage: non-finite floats become 0 and
// the classifier probability is clamped into [0,1].
func (v *VerdictRecord) Normalize() int {
	n := Sanitize(v)
	if v.ClassifierScore != nil {
		p := v.ClassifierScore.Probability
		switch {
		case p < 0:
			v.ClassifierScore.Probability = 0
			n++
		case p > 1:
			v.ClassifierScore.Probability = 1
			n++
		}
	}
	if v.Regions == nil {
		v.Regions = []RegionRecord{}
	}
	return n
}
