// Package easing names the Penner curves from gween's ease package and
// exposes them behind one interface. Curves share the classic signature
// Ease(t, b, c, d) where t is elapsed time, b the start value, c the change
// in value and d the total time. The animation driver normalises
// time, so it always calls Ease(progress, start, delta, 1).
//
// Curves are pure and never clamp t; a curve that panics is a caller defect.
package easing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tanema/gween/ease"
)

// Easing maps time to an interpolated value.
type Easing interface {
	Ease(t, b, c, d float32) float32
}

// Func adapts a plain function to Easing. Its signature matches
// ease.TweenFunc, so gween curves convert directly.
type Func func(t, b, c, d float32) float32

// Ease implements Easing.
func (f Func) Ease(t, b, c, d float32) float32 {
	return f(t, b, c, d)
}

// ErrUnknownEasing is returned by Lookup for a name that isn't registered.
var ErrUnknownEasing = errors.New("unknown easing")

// Default is the curve used when a motion doesn't set one.
var Default Easing = Linear

// Curves that Go callers reference directly. Every curve is also reachable
// by name through Lookup.
var (
	Linear    Easing = Func(ease.Linear)
	QuadIn    Easing = Func(ease.InQuad)
	QuadInOut Easing = Func(ease.InOutQuad)
	SineOut   Easing = Func(ease.OutSine)
	BackOut   Easing = Func(ease.OutBack)
)

// registry maps kebab-case names to curves.
var registry = map[string]Easing{
	"linear": Linear,

	"quad-in":     QuadIn,
	"quad-out":    Func(ease.OutQuad),
	"quad-in-out": QuadInOut,

	"cubic-in":     Func(ease.InCubic),
	"cubic-out":    Func(ease.OutCubic),
	"cubic-in-out": Func(ease.InOutCubic),

	"quart-in":     Func(ease.InQuart),
	"quart-out":    Func(ease.OutQuart),
	"quart-in-out": Func(ease.InOutQuart),

	"quint-in":     Func(ease.InQuint),
	"quint-out":    Func(ease.OutQuint),
	"quint-in-out": Func(ease.InOutQuint),

	"sine-in":     Func(ease.InSine),
	"sine-out":    SineOut,
	"sine-in-out": Func(ease.InOutSine),

	// expo-in stops 0.1% short of b+c at t=d; the driver writes the target
	// itself when a run ends, so the final value is still exact.
	"expo-in":     Func(ease.InExpo),
	"expo-out":    Func(ease.OutExpo),
	"expo-in-out": Func(ease.InOutExpo),

	"circ-in":     Func(ease.InCirc),
	"circ-out":    Func(ease.OutCirc),
	"circ-in-out": Func(ease.InOutCirc),

	"elastic-in":     Func(ease.InElastic),
	"elastic-out":    Func(ease.OutElastic),
	"elastic-in-out": Func(ease.InOutElastic),

	"back-in":     Func(ease.InBack),
	"back-out":    BackOut,
	"back-in-out": Func(ease.InOutBack),

	"bounce-in":     Func(ease.InBounce),
	"bounce-out":    Func(ease.OutBounce),
	"bounce-in-out": Func(ease.InOutBounce),
}

// Lookup returns the curve registered under name. Matching ignores case and
// surrounding whitespace; underscores are accepted in place of dashes.
func Lookup(name string) (Easing, error) {
	if e, ok := registry[normalize(name)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEasing, name)
}

// Canonical returns the registered spelling of name, as Names lists it.
func Canonical(name string) (string, error) {
	key := normalize(name)
	if _, ok := registry[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEasing, name)
	}
	return key, nil
}

func normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(key, "_", "-")
}

// Names returns every registered curve name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
