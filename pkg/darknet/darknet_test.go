// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package darknet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolofe/yolofe/pkg/dataset"
	"github.com/yolofe/yolofe/pkg/settings"
	"github.com/yolofe/yolofe/ui/commandline"
)

// setup creates a dataset "ds" with the given classes (each with one image) in a memory filesystem.
func setup(t *testing.T, classes ...string) (afero.Fs, *settings.Settings, *dataset.Dataset) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := settings.Default("/work")
	require.NoError(t, s.Resolve())
	must.M(fs.MkdirAll(filepath.Join(s.DatasetsDir, "ds"), 0755))
	for _, class := range classes {
		must.M(afero.WriteFile(fs, filepath.Join(s.DatasetsDir, "ds", class, "0.jpg"), []byte("img"), 0644))
	}
	ds := must.M1(dataset.NewScanner(fs, s).Open("ds"))
	return fs, s, ds
}

func readString(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(contents)
}

func TestPrepareTrain(t *testing.T) {
	fs, s, ds := setup(t, "person", "car", "bike")
	tmpl := NewTemplater(fs, s)
	files, err := tmpl.Prepare(ds, Options{Mode: Train})
	require.NoError(t, err)

	assert.True(t, files.Generated)
	assert.Equal(t, 3, files.Classes)
	assert.Equal(t, 6000, files.MaxIterations)
	assert.Equal(t, "/work/yolo/cfg/ds-train.cfg", files.Network)
	assert.Equal(t, "/work/yolo/data/obj.data", files.Data)
	assert.Equal(t, "/work/yolo/data/train.txt", files.Train)
	assert.Equal(t, "/work/yolo/data/test.txt", files.Test)

	cfg := readString(t, fs, files.Network)
	assert.Contains(t, cfg, "\nbatch=64\n")
	assert.Contains(t, cfg, "\nsubdivisions=16\n")
	assert.Contains(t, cfg, "\nmax_batches=6000\n")
	assert.Contains(t, cfg, "\nsteps=4800,5400\n")
	assert.Equal(t, 2, strings.Count(cfg, "\nclasses=3\n"))
	assert.Equal(t, 2, strings.Count(cfg, "\nfilters=24\n"))
	assert.NotContains(t, cfg, "{{")

	assert.Equal(t, "bike\ncar\nperson\n", readString(t, fs, files.Names))
	assert.Equal(t, "classes = 3\n"+
		"train = /work/yolo/data/train.txt\n"+
		"valid = /work/yolo/data/test.txt\n"+
		"names = /work/yolo/data/obj.names\n"+
		"backup = /work/yolo/backup/\n", readString(t, fs, files.Data))
}

func TestPrepareMaxIterationsAndTestMode(t *testing.T) {
	fs, s, ds := setup(t, "a")
	tmpl := NewTemplater(fs, s)
	files, err := tmpl.Prepare(ds, Options{Mode: Train, MaxIterations: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, files.MaxIterations)
	cfg := readString(t, fs, files.Network)
	assert.Contains(t, cfg, "\nmax_batches=500\n")
	assert.Contains(t, cfg, "\nsteps=400,450\n")
	assert.Contains(t, cfg, "\nfilters=18\n")

	files, err = tmpl.Prepare(ds, Options{Mode: Test})
	require.NoError(t, err)
	assert.Equal(t, "/work/yolo/cfg/ds-test.cfg", files.Network)
	cfg = readString(t, fs, files.Network)
	assert.Contains(t, cfg, "\nbatch=1\n")
	assert.Contains(t, cfg, "\nsubdivisions=1\n")
	assert.Contains(t, cfg, "\nmax_batches=2000\n")
}

func TestPrepareIdempotent(t *testing.T) {
	fs, s, ds := setup(t, "a", "b")
	tmpl := NewTemplater(fs, s)
	opts := Options{Mode: Train, MaxIterations: 1234, Overrides: []commandline.Setting{{Key: "width", Value: "608"}}}
	first := must.M1(tmpl.Prepare(ds, opts))
	cfg1, data1 := readString(t, fs, first.Network), readString(t, fs, first.Data)
	second := must.M1(tmpl.Prepare(ds, opts))
	assert.Equal(t, first, second)
	assert.Equal(t, cfg1, readString(t, fs, second.Network))
	assert.Equal(t, data1, readString(t, fs, second.Data))
}

func TestPrepareCustomConfig(t *testing.T) {
	fs, s, ds := setup(t, "a", "b")
	require.NoError(t, afero.WriteFile(fs, "/custom/my.cfg", []byte("[net]\nbatch=2\n"), 0644))
	tmpl := NewTemplater(fs, s)

	files, err := tmpl.Prepare(ds, Options{Mode: Train, ConfigFile: "/custom/my.cfg"})
	require.NoError(t, err)
	assert.False(t, files.Generated)
	assert.Equal(t, "/custom/my.cfg", files.Network)
	assert.Equal(t, "[net]\nbatch=2\n", readString(t, fs, "/custom/my.cfg"), "custom file must not be modified")
	exists := must.M1(afero.Exists(fs, "/work/yolo/cfg/ds-train.cfg"))
	assert.False(t, exists)
	assert.Equal(t, "a\nb\n", readString(t, fs, files.Names))

	_, err = tmpl.Prepare(ds, Options{Mode: Train, ConfigFile: "/custom/missing.cfg"})
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestPrepareRelativeConfig(t *testing.T) {
	fs, s, ds := setup(t, "a")
	t.Chdir(t.TempDir())
	cwd := must.M1(os.Getwd())
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cwd, "cfg", "my.cfg"), []byte("[net]\n"), 0644))

	files, err := NewTemplater(fs, s).Prepare(ds, Options{Mode: Train, ConfigFile: filepath.Join("cfg", "my.cfg")})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(files.Network))
	assert.Equal(t, filepath.Join(cwd, "cfg", "my.cfg"), files.Network)
	assert.Contains(t, readString(t, fs, files.Data), "classes = 1\n")
}

func TestPrepareNoClasses(t *testing.T) {
	fs, s, ds := setup(t)
	_, err := NewTemplater(fs, s).Prepare(ds, Options{Mode: Train})
	require.ErrorIs(t, err, ErrNoClasses)
}

func TestRenderNetworkOverrides(t *testing.T) {
	params := NewNetworkParams(2, Train, 0)
	assert.Equal(t, 4000, params.MaxBatches)

	cfg, err := RenderNetwork(params, []commandline.Setting{{Key: "width", Value: "608"}, {Key: "height", Value: "608"}, {Key: "max_batches", Value: "10"}})
	require.NoError(t, err)
	text := string(cfg)
	assert.Contains(t, text, "\nwidth=608\n")
	assert.Contains(t, text, "\nheight=608\n")
	assert.Contains(t, text, "\nmax_batches=10\n")
	assert.NotContains(t, text, "width=416")

	// "classes" only exists in the [yolo] sections.
	_, err = RenderNetwork(params, []commandline.Setting{{Key: "classes", Value: "7"}})
	require.Error(t, err)
	_, err = RenderNetwork(params, []commandline.Setting{{Key: "no_such_key", Value: "1"}})
	require.Error(t, err)
}
