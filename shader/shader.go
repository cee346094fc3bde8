package shader

import "github.com/richinsley/glhandoff/handoff"

// ────────────────────────────────── Desktop GL ──────────────────────────────────

const vertexShaderSourceGL = `#version 410 core
layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
void main() {
    frag_uv = in_vert * 0.5 + 0.5;
    gl_Position = vec4(in_vert, 0.0, 1.0);
}
`

// ──────────────────────────────────── GLES ──────────────────────────────────────

const vertexShaderSourceGLES = `#version 300 es
layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
void main() {
    frag_uv = in_vert * 0.5 + 0.5;
    gl_Position = vec4(in_vert, 0.0, 1.0);
}
`

// ──────────────────────────── WebGL2 blit (translated) ──────────────────────────

// The blit fragment is written once against WebGL2 and translated to the
// target dialect at program build time. Frames arrive top row first, so the
// default path flips v.
const blitFragmentSourceWebGL2 = `#version 300 es
precision mediump float;
in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_texture;
uniform int u_swizzle;   // 1: texture holds BGRA
uniform int u_flip;
void main() {
    vec2 uv = u_flip == 1 ? vec2(frag_uv.x, 1.0 - frag_uv.y) : frag_uv;
    vec4 c = texture(u_texture, uv);
    fragColor = u_swizzle == 1 ? c.bgra : c;
}
`

// Uniform names declared by the blit fragment.
const (
	UniformTexture = "u_texture"
	UniformSwizzle = "u_swizzle"
	UniformFlip    = "u_flip"
)

// ────────────────────────────────── Public API ─────────────────────────────────

func GenerateVertexShader(isGLES bool) string {
	if isGLES {
		return vertexShaderSourceGLES
	}
	return vertexShaderSourceGL
}

// GetBlitFragmentSource returns the untranslated WebGL2 blit fragment.
func GetBlitFragmentSource() string {
	return blitFragmentSourceWebGL2
}

// NeedsSwizzle reports whether frames in format f must be swizzled by the
// blit to display correctly.
func NeedsSwizzle(f handoff.PixelFormat) bool {
	return f == handoff.FormatBGRA
}
