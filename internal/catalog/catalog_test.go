package catalog

import (
	"testing"

	"github.com/spf13/afero"
)

const sampleWorkflow = `
apiVersion: weft/v1
kind: Workflow
metadata:
  name: greet
  namespace: demo
spec:
  input:
    - name: who
      type: string
  tasks:
    - id: say
      taskRef: echo
      input:
        who: "{{input.who}}"
  output:
    said: "{{tasks.say.output.said}}"
`

const sampleTaskSpec = `
name: echo
namespace: demo
kind: inline
inline:
  function: echo
`

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestGetWorkflowResolvesByNameAndNamespacedRef(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/workflows/greet.yaml", sampleWorkflow)

	c := New(fs, []string{"/workflows"}, nil)

	wf, err := c.GetWorkflow("greet")
	if err != nil {
		t.Fatalf("GetWorkflow(greet): %v", err)
	}
	if wf.Metadata.Name != "greet" {
		t.Fatalf("got name %q", wf.Metadata.Name)
	}
	if len(wf.Tasks) != 1 || wf.Tasks[0].ID != "say" {
		t.Fatalf("unexpected tasks: %+v", wf.Tasks)
	}

	if _, err := c.GetWorkflow("demo/greet"); err != nil {
		t.Fatalf("GetWorkflow(demo/greet): %v", err)
	}
}

func TestGetTaskSpecResolvesByNameAndNamespacedRef(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tasks/echo.yaml", sampleTaskSpec)

	c := New(fs, nil, []string{"/tasks"})

	spec, err := c.GetTaskSpec("echo")
	if err != nil {
		t.Fatalf("GetTaskSpec(echo): %v", err)
	}
	if spec.Inline == nil || spec.Inline.Function != "echo" {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	if _, err := c.GetTaskSpec("demo/echo"); err != nil {
		t.Fatalf("GetTaskSpec(demo/echo): %v", err)
	}
}

func TestListTaskSpecsDeduplicatesAcrossRefForms(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tasks/echo.yaml", sampleTaskSpec)

	c := New(fs, nil, []string{"/tasks"})
	specs, err := c.ListTaskSpecs()
	if err != nil {
		t.Fatalf("ListTaskSpecs: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 distinct spec (indexed under name + namespace/name), got %d", len(specs))
	}
}

func TestGetWorkflowNotFoundIsConfigurationError(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, []string{"/workflows"}, nil)

	if _, err := c.GetWorkflow("missing"); err == nil {
		t.Fatal("expected error for missing workflow")
	}
}

func TestGetTaskSpecNotFoundIsConfigurationError(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, nil, []string{"/tasks"})

	if _, err := c.GetTaskSpec("missing"); err == nil {
		t.Fatal("expected error for missing task spec")
	}
}

func TestUnknownFieldsRejectedByStrictDecoding(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/workflows/bad.yaml", sampleWorkflow+"\nbogusField: true\n")

	c := New(fs, []string{"/workflows"}, nil)
	if _, err := c.GetWorkflow("greet"); err == nil {
		t.Fatal("expected strict decode to reject unknown top-level field")
	}
}

func TestInvalidateForcesRescan(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, []string{"/workflows"}, nil)

	if _, err := c.GetWorkflow("greet"); err == nil {
		t.Fatal("expected not-found before the file exists")
	}

	writeFile(t, fs, "/workflows/greet.yaml", sampleWorkflow)
	c.Invalidate()

	if _, err := c.GetWorkflow("greet"); err != nil {
		t.Fatalf("GetWorkflow after Invalidate: %v", err)
	}
}

func TestLoadWorkflowFileParsesDirectly(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/path/to/greet.yaml", sampleWorkflow)

	wf, err := LoadWorkflowFile(fs, "/path/to/greet.yaml")
	if err != nil {
		t.Fatalf("LoadWorkflowFile: %v", err)
	}
	if wf.Metadata.Name != "greet" {
		t.Fatalf("got name %q", wf.Metadata.Name)
	}
}

func TestLoadWorkflowFileMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := LoadWorkflowFile(fs, "/nope.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
