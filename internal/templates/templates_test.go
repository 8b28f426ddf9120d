package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillforge/internal/config"
	"skillforge/internal/safety"
)

func sampleTemplate() *Template {
	return &Template{
		Name:     "greeter",
		Kind:     KindDo,
		Language: "Python",
		Components: []Component{
			{Name: "def", Template: "def {fn}():\n    return '{greeting}'"},
			{Name: "call", Template: "print({fn}())  # {unset}"},
		},
	}
}

func TestRenderSubstitutesInOrder(t *testing.T) {
	got := sampleTemplate().Render(map[string]string{"fn": "hello", "greeting": "hi"})
	want := "# Component: def\ndef hello():\n    return 'hi'\n\n# Component: call\nprint(hello())  # {unset}\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestSubstituteIsSinglePass(t *testing.T) {
	got := Substitute("{a} {b}", map[string]string{"a": "{b}", "b": "B"})
	assert.Equal(t, "{b} B", got, "substituted values are not rescanned")
	assert.Equal(t, "{x}", Substitute("{x}", nil))

	got = Substitute("x={file-name} u={user.name} d={'k': 1}", map[string]string{
		"file-name": "V",
		"user.name": "ada",
	})
	assert.Equal(t, "x=V u=ada d={'k': 1}", got, "any key string is substituted, other braces are kept")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"fn", "greeting", "unset"}, sampleTemplate().Placeholders())
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"no name", func(t *Template) { t.Name = "" }},
		{"bad kind", func(t *Template) { t.Kind = "dream" }},
		{"no components", func(t *Template) { t.Components = nil }},
		{"unnamed component", func(t *Template) { t.Components[0].Name = "" }},
		{"duplicate component", func(t *Template) { t.Components[1].Name = t.Components[0].Name }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := sampleTemplate()
			tt.mutate(tmpl)
			assert.Error(t, tmpl.Validate())
		})
	}
	assert.NoError(t, sampleTemplate().Validate())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleTemplate()))
	require.NoError(t, r.Register(&Template{Name: "plan", Kind: KindThink, Language: "natural",
		Components: []Component{{Name: "p", Template: "{task}"}}}))

	replacement := sampleTemplate()
	replacement.Language = "python"
	require.NoError(t, r.Register(replacement))

	assert.Equal(t, []string{"greeter", "plan"}, r.List(), "re-registering keeps position")

	got, ok := r.Get("greeter")
	require.True(t, ok)
	assert.Equal(t, "python", got.Language)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	require.Len(t, r.FindByType(KindThink), 1)
	assert.Equal(t, "plan", r.FindByType(KindThink)[0].Name)
	require.Len(t, r.FindByLanguage("PYTHON"), 1)
	assert.Empty(t, r.FindByLanguage("go"))
	assert.Equal(t, []string{"natural", "python"}, r.Languages())

	assert.Error(t, r.Register(&Template{Name: "bad"}))
}

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"python_generator", "analysis_prompt", "test_harness"}, r.List())
	assert.Len(t, r.FindByType(KindDo), 2)
	assert.Len(t, r.FindByLanguage("python"), 2)

	gen, ok := r.Get("python_generator")
	require.True(t, ok)
	var names []string
	for _, c := range gen.Components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"header", "main_function", "test_harness"}, names)

	harness, ok := r.Get("test_harness")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(harness.Components[1].Template, "\n    def test_{test_name}(self):"),
		"method body keeps its class indentation")
}

type fakeChecker struct {
	err  error
	seen string
}

func (f *fakeChecker) CheckCode(code string) error {
	f.seen = code
	return f.err
}

func TestAssemble(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleTemplate()))
	require.NoError(t, r.Register(&Template{Name: "footer", Kind: KindDo, Language: "python",
		Components: []Component{{Name: "end", Template: "print('done')"}}}))

	checker := &fakeChecker{}
	a := NewAssembler(r, checker)

	got, err := a.Assemble([]string{"footer", "greeter"}, map[string]string{"fn": "f", "greeting": "g"})
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "Successfully assembled 2 template(s)", got.Message)
	assert.True(t, strings.HasPrefix(got.Code, "# Template: footer (type: do, language: python)\n# Component: end\nprint('done')\n"))
	assert.Less(t, strings.Index(got.Code, "footer"), strings.Index(got.Code, "# Template: greeter"))
	assert.Equal(t, got.Code, checker.seen, "the full artifact is safety-checked")
}

func TestAssembleErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleTemplate()))

	t.Run("empty", func(t *testing.T) {
		got, err := NewAssembler(r, nil).Assemble(nil, nil)
		assert.ErrorIs(t, err, ErrNoTemplates)
		assert.False(t, got.Success)
		assert.Empty(t, got.Code)
	})

	t.Run("unknown name fails fast", func(t *testing.T) {
		checker := &fakeChecker{}
		got, err := NewAssembler(r, checker).Assemble([]string{"greeter", "nope"}, nil)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
		assert.Equal(t, "Assembly failed: template 'nope' not found", got.Message)
		assert.Empty(t, checker.seen, "nothing is checked when resolution fails")
	})

	t.Run("safety violation", func(t *testing.T) {
		boom := errors.New("Dangerous pattern detected [dynamic_eval]: eval")
		got, err := NewAssembler(r, &fakeChecker{err: boom}).Assemble([]string{"greeter"}, nil)
		assert.ErrorIs(t, err, boom)
		assert.False(t, got.Success)
		assert.NotEmpty(t, got.Code)
		assert.Equal(t, "Assembly failed: safety violation - Dangerous pattern detected [dynamic_eval]: eval", got.Message)
	})
}

func TestAssembleWithSafetyGate(t *testing.T) {
	base := t.TempDir()
	gate, err := safety.NewGate(filepath.Join(base, "ws"), config.SafetyConfig{}, safety.WithWorkingDir(base))
	require.NoError(t, err)

	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	require.NoError(t, r.Register(&Template{Name: "sneaky", Kind: KindDo, Language: "python",
		Components: []Component{{Name: "x", Template: "eval('{payload}')"}}}))

	a := NewAssembler(r, gate)

	got, err := a.Assemble([]string{"python_generator"}, map[string]string{
		"description": "Adds numbers", "function_name": "add", "params": "", "doc_string": "Add.", "test_params": "",
	})
	require.NoError(t, err)
	assert.Contains(t, got.Code, "def add():")

	_, err = a.Assemble([]string{"python_generator", "sneaky"}, nil)
	assert.ErrorIs(t, err, safety.ErrUnsafeCode)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "single.yaml"), []byte(`
name: go_main
type: do
language: go
components:
  - name: main
    template: |
      package main
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "many.yml"), []byte(`
- name: a
  type: think
  language: natural
  components: [{name: x, template: "{t}"}]
- name: b
  type: nonsense
  language: natural
  components: [{name: x, template: "y"}]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [oops"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	r := NewRegistry()
	n, err := LoadDir(r, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"go_main", "a"}, r.List())

	n, err = LoadDir(r, filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
