package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/metrics"
)

type derivOut struct {
	System coord.System   `json:"system" yaml:"system"`
	Pos    [3]float64     `json:"pos" yaml:"pos,flow"`
	Shape  *shapeYAML     `json:"shape,omitempty" yaml:"shape,omitempty"`
	Deriv  [3][3]float64  `json:"deriv" yaml:"deriv"`
	Deriv2 *[3][6]float64 `json:"deriv2,omitempty" yaml:"deriv2,omitempty"`

	from coord.System
}

// NewDerivCommand creates the deriv command.
func NewDerivCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		from, to string
		pos      []float64
		second   bool
	)
	cmd := &cobra.Command{
		Use:   "deriv",
		Short: "Print the Jacobian (and second derivatives) of a conversion at a point",
		Long: `Convert a position and print the derivatives of the destination
coordinates with respect to the source coordinates.

Row i of the Jacobian holds the derivatives of destination coordinate i.
With --second the second derivatives are printed in the packed column order
(0,0) (1,1) (2,2) (0,1) (1,2) (0,2).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, err := parseSystems(from, to)
			if err != nil {
				return err
			}
			c, err := triple("pos", pos)
			if err != nil {
				return err
			}
			want := coord.WantDeriv
			if second {
				want = coord.WantBoth
			}
			shape := rootOpts.shape()
			res, err := coord.ToPosDeriv(coord.Pos{Sys: src, C: c, Shape: shape}, dst, shape, want)
			metrics.ObserveConversion(src, dst, metrics.KindDeriv, err)
			if err != nil {
				return WrapExitError(ExitFailure, "deriv", err)
			}

			out := derivOut{
				System: res.Pos.Sys,
				Pos:    res.Pos.C,
				Shape:  shapeOf(res.Pos.Sys, res.Pos.Shape),
				Deriv:  res.Deriv.M,
				from:   src,
			}
			if res.Deriv2 != nil {
				t := res.Deriv2.T
				out.Deriv2 = &t
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) { printDeriv(w, out) })
		},
	}

	cmd.Flags().StringVar(&from, "from", "car", "source system (car|cyl|sph|prolsph)")
	cmd.Flags().StringVar(&to, "to", "sph", "destination system (car|cyl|sph|prolsph)")
	cmd.Flags().Float64SliceVar(&pos, "pos", nil, "position, three comma-separated values")
	cmd.Flags().BoolVar(&second, "second", false, "also print second derivatives")
	return cmd
}

func printDeriv(w io.Writer, d derivOut) {
	fmt.Fprintf(w, "%s", d.System)
	for i, c := range d.Pos {
		fmt.Fprintf(w, " %s=%.15g", d.System.Axis(i), c)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{""}
	for a := 0; a < 3; a++ {
		header = append(header, "d/d"+d.from.Axis(a))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i, row := range d.Deriv {
		fmt.Fprintf(tw, "%s", d.System.Axis(i))
		for _, v := range row {
			fmt.Fprintf(tw, "\t%.12g", v)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()

	if d.Deriv2 == nil {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header = []string{""}
	for _, ab := range [6][2]int{{0, 0}, {1, 1}, {2, 2}, {0, 1}, {1, 2}, {0, 2}} {
		header = append(header, d.from.Axis(ab[0])+","+d.from.Axis(ab[1]))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i, row := range d.Deriv2 {
		fmt.Fprintf(tw, "%s", d.System.Axis(i))
		for _, v := range row {
			fmt.Fprintf(tw, "\t%.12g", v)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
