package compute

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/collision"
)

var (
	//go:embed shaders/partition.comp
	partitionSource string
	//go:embed shaders/fill.comp
	fillSource string
	//go:embed shaders/update.comp
	updateSource string
)

// updateShaderSource specializes the update shader for p. Flags and the
// obstacle list are compiled in, the same way the CPU pass fixes them at
// construction.
func updateShaderSource(p collision.Params) string {
	return withDefines(updateSource, updateDefines(p))
}

func updateDefines(p collision.Params) []string {
	defs := []string{"#define BIN_CAPACITY " + strconv.Itoa(binning.Capacity)}

	if offsets := p.Flags.Offsets(); len(offsets) > 0 {
		vs := make([]string, len(offsets))
		for i, o := range offsets {
			vs[i] = fmt.Sprintf("ivec2(%d, %d)", o[0], o[1])
		}
		defs = append(defs,
			"#define COLLISIONS",
			fmt.Sprintf("#define OFFSET_COUNT %d", len(offsets)),
			fmt.Sprintf("const ivec2 OFFSETS[%d] = ivec2[%d](%s);", len(offsets), len(offsets), strings.Join(vs, ", ")),
		)
	}

	// GLSL has no zero-length arrays, so an empty list compiles the block out.
	if p.Flags.StaticCollisions && len(p.Colliders) > 0 {
		vs := make([]string, len(p.Colliders))
		for i, c := range p.Colliders {
			vs[i] = fmt.Sprintf("vec3(%s, %s, %s)", glslFloat(c.Center.X()), glslFloat(c.Center.Y()), glslFloat(c.Radius))
		}
		defs = append(defs,
			"#define STATIC_COLLISIONS",
			fmt.Sprintf("#define COLLIDER_COUNT %d", len(p.Colliders)),
			fmt.Sprintf("const vec3 COLLIDERS[%d] = vec3[%d](%s);", len(vs), len(vs), strings.Join(vs, ", ")),
		)
	}
	return defs
}

// withDefines inserts defs right after the #version line.
func withDefines(src string, defs []string) string {
	if len(defs) == 0 {
		return src
	}
	version, rest, ok := strings.Cut(src, "\n")
	if !ok || !strings.HasPrefix(version, "#version") {
		return strings.Join(defs, "\n") + "\n" + src
	}
	return version + "\n" + strings.Join(defs, "\n") + "\n" + rest
}

func glslFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
