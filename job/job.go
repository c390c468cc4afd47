// Package job describes the boards and placements a pick-and-place run
// works through.
package job

import (
	"os"
	"path/filepath"

	"github.com/mastercactapus/gpnp/errors"
	"gopkg.in/yaml.v3"
)

type Job struct {
	Name   string           `yaml:"name"`
	Panel  *Panel           `yaml:"panel,omitempty"`
	Boards []*BoardLocation `yaml:"boards"`

	file string
}

// EnabledBoards returns the boards taking part in a run, in job order.
func (j *Job) EnabledBoards() []*BoardLocation {
	var res []*BoardLocation
	for _, bl := range j.Boards {
		if bl.Enabled && bl.Board != nil {
			res = append(res, bl)
		}
	}
	return res
}

// File is the path the job was loaded from or last saved to.
func (j *Job) File() string { return j.file }

// Load reads a job from a YAML file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read job %s", path)
	}
	j, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse job %s", path)
	}
	j.file = path
	return j, nil
}

// Parse decodes a job from YAML.
func Parse(data []byte) (*Job, error) {
	var j Job
	err := yaml.Unmarshal(data, &j)
	if err != nil {
		return nil, err
	}
	for i, bl := range j.Boards {
		if bl.Board == nil {
			return nil, errors.Newf("board %d has no board definition", i)
		}
	}
	return &j, nil
}

// Save writes j to path, or to the file it was loaded from when path is
// empty. The file is replaced atomically.
func (j *Job) Save(path string) error {
	if path == "" {
		path = j.file
	}
	if path == "" {
		return errors.New("job has no file name")
	}
	data, err := yaml.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return errors.Wrap(err, "create job directory")
	}
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, data, 0644)
	if err != nil {
		return errors.Wrapf(err, "write job %s", path)
	}
	err = os.Rename(tmp, path)
	if err != nil {
		return errors.Wrapf(err, "write job %s", path)
	}
	j.file = path
	return nil
}

// Saver persists a job. *FileSaver is the default.
type Saver interface {
	SaveJob(*Job) error
}

// FileSaver saves jobs back to their own file.
type FileSaver struct{}

func (FileSaver) SaveJob(j *Job) error { return j.Save("") }
