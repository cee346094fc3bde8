package shader

import (
	"context"
	"fmt"
	"sync"

	gst "github.com/richinsley/goshadertranslator"
)

var (
	translator     *gst.ShaderTranslator
	translatorErr  error
	translatorOnce sync.Once
)

func getTranslator() (*gst.ShaderTranslator, error) {
	translatorOnce.Do(func() {
		translator, translatorErr = gst.NewShaderTranslator(context.Background())
	})
	return translator, translatorErr
}

// Translated is a fragment shader ready for compilation together with the
// names its uniforms were mapped to.
type Translated struct {
	Code     string
	uniforms map[string]string
}

// Uniform returns the mapped name of uniform name, or false when the
// translator eliminated it.
func (t *Translated) Uniform(name string) (string, bool) {
	mapped, ok := t.uniforms[name]
	return mapped, ok
}

// TranslateBlit translates the WebGL2 blit fragment into GLSL 410 for desktop
// contexts or ESSL for GLES contexts.
func TranslateBlit(isGLES bool) (*Translated, error) {
	return TranslateFragment(GetBlitFragmentSource(), isGLES)
}

func TranslateFragment(source string, isGLES bool) (*Translated, error) {
	tr, err := getTranslator()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader translator: %w", err)
	}

	outputFormat := gst.OutputFormatGLSL410
	if isGLES {
		outputFormat = gst.OutputFormatESSL
	}
	fsShader, err := tr.TranslateShader(source, "fragment", gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return nil, fmt.Errorf("fragment shader translation failed: %w", err)
	}

	t := &Translated{
		Code:     fsShader.Code,
		uniforms: make(map[string]string, len(fsShader.Variables)),
	}
	for name, v := range fsShader.Variables {
		t.uniforms[name] = v.MappedName
	}
	return t, nil
}
