package rexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

// PodConfig describes the container that commands are executed in.
type PodConfig struct {
	Namespace  string `yaml:"namespace"`
	Name       string `yaml:"name"`
	Container  string `yaml:"container"`
	KubeConfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`
}

// Pod is a runner that executes commands inside a Kubernetes pod. The
// API server receives the argument vector, so no shell is involved
// unless WithShell is used.
type Pod struct {
	Logger *zerolog.Logger
	Target *PodConfig

	config    *rest.Config
	clientset kubernetes.Interface
}

// NewPod returns a new runner for a pod.
func NewPod(target *PodConfig, options ...Option) (*Pod, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if target.Name == "" {
		return nil, errors.New("pod name is required")
	}
	if target.Namespace == "" {
		target.Namespace = "default"
	}

	return &Pod{
		Logger: opts.Logger,
		Target: target,
	}, nil
}

// Connect loads the kubeconfig and verifies that the pod exists.
func (runner *Pod) Connect(ctx context.Context) error {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if runner.Target.KubeConfig != "" {
		kubeConfig, err := expandHome(runner.Target.KubeConfig)
		if err != nil {
			return err
		}
		rules.ExplicitPath = kubeConfig
	}

	overrides := &clientcmd.ConfigOverrides{CurrentContext: runner.Target.Context}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return err
	}

	if _, err := clientset.CoreV1().Pods(runner.Target.Namespace).Get(ctx, runner.Target.Name, metav1.GetOptions{}); err != nil {
		return err
	}

	runner.config = config
	runner.clientset = clientset

	return nil
}

// Run executes the command in the pod.
func (runner *Pod) Run(ctx context.Context, cmd shell.Command, options ...ExecOption) (*Result, error) {
	opts, err := GetDefaultExecOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if runner.clientset == nil {
		return nil, ErrNotConnected
	}

	argv := prepare(cmd, opts).Argv().Args()
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	req := runner.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(runner.Target.Namespace).
		Name(runner.Target.Name).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: runner.Target.Container,
			Command:   argv,
			Stdin:     opts.Stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(runner.config, "POST", req.URL())
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	status := 0
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  opts.Stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		var exitErr utilexec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		status = exitErr.ExitStatus()
	}

	runner.Logger.Debug().Strs("argv", argv).Int("status", status).Msg("Command finished")

	return finish(cmd, stdout.String(), stderr.String(), status, opts)
}

// Upload streams a file into the pod. The target path is passed as a
// positional parameter, so it never needs quoting.
func (runner *Pod) Upload(ctx context.Context, path string, reader io.Reader) error {
	script := `mkdir -p "$(dirname "$1")" && cat > "$1"`
	_, err := runner.Run(ctx, shell.Args("sh", "-c", script, "upload", path), WithStdin(reader))
	return err
}

// Disconnect drops the client.
func (runner *Pod) Disconnect() error {
	runner.clientset = nil
	runner.config = nil
	return nil
}

func (runner *Pod) String() string {
	name := runner.Target.Namespace + "/" + runner.Target.Name
	if runner.Target.Container != "" {
		name += "/" + runner.Target.Container
	}
	return "pod://" + name
}

// expandHome resolves a leading tilde in a path.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return filepath.Join(home, path[1:]), nil
}
