package scanner

import "strings"

// Finger is the finger position recorded in templates (ANSI/ISO numbering).
type Finger uint32

const (
	FingerUnknown Finger = iota
	RightThumb
	RightIndex
	RightMiddle
	RightRing
	RightLittle
	LeftThumb
	LeftIndex
	LeftMiddle
	LeftRing
	LeftLittle
)

var fingerNames = [...]string{
	"unknown",
	"right_thumb", "right_index", "right_middle", "right_ring", "right_little",
	"left_thumb", "left_index", "left_middle", "left_ring", "left_little",
}

func (f Finger) String() string {
	if int(f) < len(fingerNames) {
		return fingerNames[f]
	}
	return "unknown"
}

// ParseFinger accepts "right_index", "left-thumb", "Left Ring" and the bare
// names "thumb", "index", ... which mean the right hand.
func ParseFinger(s string) (Finger, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	if name == "" {
		return FingerUnknown, true
	}
	if !strings.HasPrefix(name, "left_") && !strings.HasPrefix(name, "right_") && name != "unknown" {
		name = "right_" + name
	}
	for i, n := range fingerNames {
		if n == name {
			return Finger(i), true
		}
	}
	return FingerUnknown, false
}
