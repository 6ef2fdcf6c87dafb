package transport

import (
	"math"
	"strconv"
	"time"
)

func propString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func propInt(v any) (int64, bool) {
	switch tv := v.(type) {
	case int64:
		return tv, true
	case int:
		return int64(tv), true
	case float64:
		if tv != math.Trunc(tv) {
			return 0, false
		}
		return int64(tv), true
	case string:
		i, err := strconv.ParseInt(tv, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func propBool(v any) (bool, bool) {
	switch tv := v.(type) {
	case bool:
		return tv, true
	case int64:
		return tv != 0, true
	case int:
		return tv != 0, true
	case string:
		b, err := strconv.ParseBool(tv)
		return b, err == nil
	}
	return false, false
}

func propPort(v any) (int, bool) {
	i, ok := propInt(v)
	if !ok || i < 0 || i > 65535 {
		return 0, false
	}
	return int(i), true
}

func propMillis(v any) (time.Duration, bool) {
	i, ok := propInt(v)
	if !ok || i < 0 {
		return 0, false
	}
	return time.Duration(i) * time.Millisecond, true
}
