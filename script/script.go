// Package script runs operator scripts on machine and job events.
//
// Scripts live in <dir>/Events and are named after the event, such as
// Events/Job.Finished.sh. Every matching script runs, in name order, with
// the event variables in its environment as GPNP_<NAME>.
package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
)

const DefaultTimeout = 30 * time.Second

// Interpreters maps script extensions to the command running them.
// Other files are executed directly.
var Interpreters = map[string][]string{
	".sh": {"sh"},
	".py": {"python3"},
}

// Runner implements machine.Hooks.
type Runner struct {
	Dir     string
	Timeout time.Duration
}

var _ machine.Hooks = &Runner{}

func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir, Timeout: DefaultTimeout}
}

// Scripts returns the scripts for event.
func (r *Runner) Scripts(event string) ([]string, error) {
	if r.Dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(r.Dir, "Events", event+".*"))
	if err != nil {
		return nil, err
	}
	res := files[:0]
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.IsDir() {
			continue
		}
		res = append(res, f)
	}
	sort.Strings(res)
	return res, nil
}

// Env formats vars as environment entries.
func Env(vars map[string]interface{}) []string {
	res := make([]string, 0, len(vars))
	for k, v := range vars {
		res = append(res, fmt.Sprintf("GPNP_%s=%v", strings.ToUpper(k), v))
	}
	sort.Strings(res)
	return res
}

// On runs every script for event. It stops at the first failure.
func (r *Runner) On(event string, vars map[string]interface{}) error {
	files, err := r.Scripts(event)
	if err != nil {
		return err
	}
	env := append(os.Environ(), "GPNP_EVENT="+event)
	env = append(env, Env(vars)...)

	for _, f := range files {
		err = r.run(f, env)
		if err != nil {
			return errors.Wrapf(err, "script %s", filepath.Base(f))
		}
	}
	return nil
}

func (r *Runner) run(file string, env []string) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := append(append([]string{}, Interpreters[filepath.Ext(file)]...), file)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = env

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	logger.Logger.Debugw("script finished",
		logger.FieldFile, file,
		"elapsed", time.Since(start),
		"output", strings.TrimSpace(out.String()),
	)
	if err != nil {
		return errors.WithDetail(err, strings.TrimSpace(out.String()))
	}
	return nil
}
