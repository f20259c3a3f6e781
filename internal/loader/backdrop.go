package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

// preprocessWaitDelay is how long Run waits for the tool's output after it
// is killed.
const preprocessWaitDelay = 500 * time.Millisecond

// Preprocessed backdrop file patterns.
const (
	SkyboxPattern = "*_skybox.ktx"
	IBLPattern    = "*_ibl.ktx"
)

// Backdrop is a loaded skybox and its image based lighting texture.
type Backdrop struct {
	Skybox bridge.Handle
	IBL    bridge.Handle
}

func (l *Loader) releaseBackdrop(_ resources.Handle, b *Backdrop) error {
	return multierr.Combine(l.bridge.UnloadSkybox(b.Skybox), l.bridge.UnloadIBL(b.IBL))
}

// PreprocessorName returns the conversion tool's executable name for the
// current OS.
func PreprocessorName() string {
	switch runtime.GOOS {
	case "windows":
		return "cmgen.exe"
	case "darwin":
		return "cmgen_mac"
	default:
		return "cmgen"
	}
}

// Preprocessor converts HDR images into skybox and IBL KTX files by running
// an external tool.
type Preprocessor struct {
	// Path is the executable or the directory holding it. Empty means the
	// tool is looked up on PATH.
	Path    string
	Timeout time.Duration
}

// NewPreprocessor returns a preprocessor. A non-positive timeout falls back
// to ten seconds.
func NewPreprocessor(path string, timeout time.Duration) *Preprocessor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Preprocessor{Path: path, Timeout: timeout}
}

func (p *Preprocessor) executable() (string, error) {
	path := p.Path
	switch {
	case path == "":
		path = PreprocessorName()
	default:
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, PreprocessorName())
		}
	}
	exe, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: preprocessor executable %q is not available: %w", ErrPreprocess, path, err)
	}
	return exe, nil
}

// Run converts src into KTX files written to destDir. It fails when the
// tool runs longer than the timeout or leaves no skybox and IBL files
// behind.
func (p *Preprocessor) Run(ctx context.Context, src, destDir string) error {
	exe, err := p.executable()
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: File '%s' does not exist: %w", ErrFileNotFound, src, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPreprocess, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, exe, "-q", "-f", "ktx", "-x", destDir, src)
	// bounds the wait on output pipes held open by children of the tool
	cmd.WaitDelay = preprocessWaitDelay
	out, runErr := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// the process is killed with the context; its exit error adds nothing
		return fmt.Errorf("%w: aborted after timeout of %v", ErrPreprocess, p.Timeout)
	}
	if _, _, err := findBackdropFiles(destDir); err != nil {
		return fmt.Errorf("%w: error when processing texture, check arguments and file formats: %w (tool: %v, output: %q)", ErrPreprocess, err, runErr, out)
	}
	return nil
}

func findBackdropFiles(dir string) (skybox, ibl string, err error) {
	find := func(pattern string) (string, error) {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("%w: no %s file in %s", ErrNotFound, pattern, dir)
		}
		return matches[0], nil
	}
	if skybox, err = find(SkyboxPattern); err != nil {
		return "", "", err
	}
	if ibl, err = find(IBLPattern); err != nil {
		return "", "", err
	}
	return skybox, ibl, nil
}

// PreprocessHDR converts an HDR image into KTX files in destDir with the
// loader's preprocessor.
func (l *Loader) PreprocessHDR(ctx context.Context, src, destDir string) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := l.prep.Run(ctx, src, destDir); err != nil {
		return importError(src, "preprocess", err)
	}
	l.log.Info("hdr preprocessed",
		zap.String("src", src),
		zap.String("dest", destDir),
		zap.Duration("took", time.Since(start)))
	return nil
}

// readKTX reads a file into a buffer rented from the KTX arena and passes
// the bytes to load.
func (l *Loader) readKTX(path string, load func([]byte) (bridge.Handle, error)) (h bridge.Handle, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: File '%s' does not exist: %w", ErrFileNotFound, path, err)
		}
		return 0, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	n := int(fi.Size())

	buf, err := l.ktxArena.Rent(n)
	if err != nil {
		return 0, err
	}
	defer l.giveBack(l.ktxArena, buf, &err)

	data := buf.Bytes()[:n]
	if _, err := io.ReadFull(f, data); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return load(data)
}

// LoadBackdropTexture loads a skybox and an IBL KTX file as one backdrop.
func (l *Loader) LoadBackdropTexture(skyboxPath, iblPath, name string) (h resources.Handle, err error) {
	if err := l.checkOpen(); err != nil {
		return resources.Handle{}, err
	}
	for _, p := range []string{skyboxPath, iblPath} {
		if err := l.checkPath(p); err != nil {
			return resources.Handle{}, importError(p, "open", err)
		}
	}

	skybox, err := l.readKTX(skyboxPath, l.bridge.LoadSkybox)
	if err != nil {
		return resources.Handle{}, importError(skyboxPath, "skybox", err)
	}
	ibl, err := l.readKTX(iblPath, l.bridge.LoadIBL)
	if err != nil {
		err = importError(iblPath, "ibl", err)
		return resources.Handle{}, multierr.Append(err, l.bridge.UnloadSkybox(skybox))
	}

	h = l.backdrops.Add(&Backdrop{Skybox: skybox, IBL: ibl}, name)
	l.log.Info("backdrop loaded",
		zap.String("skybox", skyboxPath),
		zap.String("ibl", iblPath),
		zap.Stringer("handle", h))
	return h, nil
}

// LoadBackdropTextureFromDirectory loads the skybox and IBL files a
// preprocessor run left in dir.
func (l *Loader) LoadBackdropTextureFromDirectory(dir, name string) (resources.Handle, error) {
	if err := l.checkOpen(); err != nil {
		return resources.Handle{}, err
	}
	skybox, ibl, err := findBackdropFiles(dir)
	if err != nil {
		return resources.Handle{}, importError(dir, "find", err)
	}
	return l.LoadBackdropTexture(skybox, ibl, name)
}

// Backdrop returns a loaded backdrop.
func (l *Loader) Backdrop(h resources.Handle) (*Backdrop, error) { return l.backdrops.Get(h) }

// BackdropName returns the name of a backdrop.
func (l *Loader) BackdropName(h resources.Handle) (string, error) { return l.backdrops.Name(h) }

// DisposeBackdrop unloads a backdrop. Disposing twice does nothing.
func (l *Loader) DisposeBackdrop(h resources.Handle) error { return l.backdrops.Dispose(h) }

// IsBackdropDisposed reports whether a backdrop was disposed.
func (l *Loader) IsBackdropDisposed(h resources.Handle) bool { return l.backdrops.IsDisposed(h) }
