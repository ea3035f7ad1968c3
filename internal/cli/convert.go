package cli

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/metrics"
	"github.com/star/galcoord/internal/trajectory"
)

type shapeYAML struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
}

func (s *shapeYAML) or(def coord.Shape) coord.Shape {
	if s == nil {
		return def
	}
	return coord.Shape{Alpha: s.Alpha, Gamma: s.Gamma}
}

func shapeOf(sys coord.System, s coord.Shape) *shapeYAML {
	if sys != coord.ProlSph {
		return nil
	}
	return &shapeYAML{Alpha: s.Alpha, Gamma: s.Gamma}
}

// pointsFile is the YAML input of `convert --points`.
type pointsFile struct {
	From      string       `yaml:"from"`
	To        string       `yaml:"to"`
	FromShape *shapeYAML   `yaml:"from_shape"`
	ToShape   *shapeYAML   `yaml:"to_shape"`
	Points    [][6]float64 `yaml:"points"`
}

// pointOut is one converted point.
type pointOut struct {
	Index  int          `json:"index" yaml:"index"`
	System coord.System `json:"system" yaml:"system"`
	Pos    [3]float64   `json:"pos" yaml:"pos,flow"`
	Vel    *[3]float64  `json:"vel,omitempty" yaml:"vel,omitempty,flow"`
	Shape  *shapeYAML   `json:"shape,omitempty" yaml:"shape,omitempty"`
	Lz     *float64     `json:"lz,omitempty" yaml:"lz,omitempty"`
	Ltotal *float64     `json:"ltotal,omitempty" yaml:"ltotal,omitempty"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
}

type convertOptions struct {
	from, to   string
	pos, vel   []float64
	pointsPath string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a point, a phase-space point or a YAML file of points",
		Long: `Convert a position (and optionally a velocity) between coordinate systems.

With --points, read a YAML file of phase-space points:

  from: car
  to: prolsph
  points:
    - [1, 2, 3, 0.1, 0.2, 0.3]

and convert them on the worker pool. Failed points are reported with the
reason and the command exits with status 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.pointsPath != "" {
				return runConvertFile(cmd, rootOpts, opts)
			}
			return runConvertPoint(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "car", "source system (car|cyl|sph|prolsph)")
	cmd.Flags().StringVar(&opts.to, "to", "sph", "destination system (car|cyl|sph|prolsph)")
	cmd.Flags().Float64SliceVar(&opts.pos, "pos", nil, "position, three comma-separated values")
	cmd.Flags().Float64SliceVar(&opts.vel, "vel", nil, "velocity, three comma-separated values")
	cmd.Flags().StringVarP(&opts.pointsPath, "points", "p", "", "YAML file of phase-space points")
	return cmd
}

func triple(name string, v []float64) ([3]float64, error) {
	if len(v) != 3 {
		return [3]float64{}, NewExitError(ExitCommandError, fmt.Sprintf("--%s needs exactly 3 values, got %d", name, len(v)))
	}
	return [3]float64{v[0], v[1], v[2]}, nil
}

func runConvertPoint(cmd *cobra.Command, root *RootOptions, opts *convertOptions) error {
	from, to, err := parseSystems(opts.from, opts.to)
	if err != nil {
		return err
	}
	pos, err := triple("pos", opts.pos)
	if err != nil {
		return err
	}
	src := coord.Pos{Sys: from, C: pos, Shape: root.shape()}

	var out pointOut
	if opts.vel == nil {
		p, err := coord.ToPos(src, to, root.shape())
		metrics.ObserveConversion(from, to, metrics.KindPos, err)
		if err != nil {
			return WrapExitError(ExitFailure, "convert", err)
		}
		out = pointOut{System: p.Sys, Pos: p.C, Shape: shapeOf(p.Sys, p.Shape)}
	} else {
		vel, err := triple("vel", opts.vel)
		if err != nil {
			return err
		}
		pv, err := coord.ToPosVel(coord.PosVel{Pos: src, V: vel}, to, root.shape())
		metrics.ObserveConversion(from, to, metrics.KindPosVel, err)
		if err != nil {
			return WrapExitError(ExitFailure, "convert", err)
		}
		out = phaseOut(0, pv)
	}
	return render(cmd.OutOrStdout(), root.Format, out, func(w io.Writer) { printPoint(w, out) })
}

func phaseOut(i int, pv coord.PosVel) pointOut {
	v := pv.V
	return pointOut{
		Index:  i,
		System: pv.Sys,
		Pos:    pv.C,
		Vel:    &v,
		Shape:  shapeOf(pv.Sys, pv.Shape),
		Lz:     finite(coord.Lz(pv)),
		Ltotal: finite(coord.Ltotal(pv)),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func runConvertFile(cmd *cobra.Command, root *RootOptions, opts *convertOptions) error {
	raw, err := os.ReadFile(opts.pointsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "read points", err)
	}
	var in pointsFile
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return WrapExitError(ExitCommandError, "parse points", err)
	}
	if in.From == "" || cmd.Flags().Changed("from") {
		in.From = opts.from
	}
	if in.To == "" || cmd.Flags().Changed("to") {
		in.To = opts.to
	}
	from, to, err := parseSystems(in.From, in.To)
	if err != nil {
		return err
	}
	if len(in.Points) > root.cfg.HTTP.MaxPoints {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d points exceeds the limit of %d", len(in.Points), root.cfg.HTTP.MaxPoints))
	}

	points := make([]coord.PosVel, len(in.Points))
	for i, p := range in.Points {
		points[i] = coord.PosVelFrom(from, p, in.FromShape.or(root.shape()))
	}
	pool := trajectory.NewPool(root.cfg.Workers, root.logger)
	res, st, err := pool.Convert(cmd.Context(), points, to, in.ToShape.or(root.shape()))
	if err != nil {
		return WrapExitError(ExitFailure, "convert points", err)
	}

	out := make([]pointOut, len(res))
	for i := range res {
		out[i] = phaseOut(i, res[i])
	}
	for _, pe := range st.Errors {
		out[pe.Index] = pointOut{Index: pe.Index, System: to, Error: pe.Err.Error()}
	}
	root.logger.Info("points converted",
		"component", "cli",
		"converted", st.Converted,
		"failed", st.Failed,
		"duration_ms", st.Duration.Milliseconds(),
	)

	err = render(cmd.OutOrStdout(), root.Format, out, func(w io.Writer) {
		for _, p := range out {
			printPoint(w, p)
		}
	})
	if err != nil {
		return err
	}
	if st.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d points failed", st.Failed, len(points)))
	}
	return nil
}

func printPoint(w io.Writer, p pointOut) {
	if p.Error != "" {
		fmt.Fprintf(w, "#%d error: %s\n", p.Index, p.Error)
		return
	}
	fmt.Fprintf(w, "#%d %s", p.Index, p.System)
	for i, c := range p.Pos {
		fmt.Fprintf(w, " %s=%.15g", p.System.Axis(i), c)
	}
	if p.Vel != nil {
		for i, v := range p.Vel {
			fmt.Fprintf(w, " v%s=%.15g", p.System.Axis(i), v)
		}
	}
	if p.Lz != nil {
		fmt.Fprintf(w, " Lz=%.15g", *p.Lz)
	}
	if p.Ltotal != nil {
		fmt.Fprintf(w, " L=%.15g", *p.Ltotal)
	}
	fmt.Fprintln(w)
}
