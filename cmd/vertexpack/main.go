// Command vertexpack is a stdin/stdout filter around the vertexpack codec:
// it reads raw fixed-stride vertex records, encodes them (or decodes a
// previously encoded stream), and writes the result to standard output.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	vertexpack "github.com/Akron/vertexpack-go"
)

func main() {
	app := &cli.App{
		Name:  "vertexpack",
		Usage: "Compress and decompress columnar vertex buffers",
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Encode raw vertex records from stdin to stdout",
				UsageText: "vertexpack encode --stride N [--positions] [--planes] [--stats]",
				Flags: []cli.Flag{
					strideFlag(),
					&cli.BoolFlag{
						Name:  "positions",
						Usage: "truncate each record to its first 12 bytes before encoding",
					},
					&cli.BoolFlag{
						Name:  "planes",
						Usage: "use the experimental bit-plane codec",
					},
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "print per-column statistics to stderr",
					},
				},
				Action: encodeAction,
			},
			{
				Name:      "decode",
				Usage:     "Decode an encoded stream from stdin to raw records on stdout",
				UsageText: "vertexpack decode --stride N --count M [--planes]",
				Flags: []cli.Flag{
					strideFlag(),
					&cli.IntFlag{
						Name:     "count",
						Usage:    "number of vertices in the encoded stream",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "planes",
						Usage: "decode the experimental bit-plane format",
					},
				},
				Action: decodeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vertexpack:", err)
		os.Exit(1)
	}
}

func strideFlag() cli.Flag {
	return &cli.IntFlag{
		Name:     "stride",
		Usage:    "vertex size in bytes (a multiple of 4, at most 256)",
		Required: true,
	}
}

func checkStride(stride int) error {
	if stride <= 0 || stride > vertexpack.MaxVertexSize || stride%4 != 0 {
		return fmt.Errorf("invalid stride %d: must be a positive multiple of 4, at most %d", stride, vertexpack.MaxVertexSize)
	}
	return nil
}

func encodeAction(c *cli.Context) error {
	stride := c.Int("stride")
	if err := checkStride(stride); err != nil {
		return err
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	// Ignore a trailing partial record.
	input = input[:len(input)/stride*stride]

	if c.Bool("positions") {
		if input, err = truncateRecords(input, stride, 12); err != nil {
			return err
		}
		stride = 12
	}

	if c.Bool("planes") {
		_, err = os.Stdout.Write(vertexpack.EncodePlanes(nil, input, stride))
		return err
	}

	count := len(input) / stride
	out := make([]byte, vertexpack.EncodeBound(count, stride))

	var n int
	if c.Bool("stats") {
		stats := vertexpack.NewStats()
		if n, err = vertexpack.EncodeWithObserver(out, input, stride, stats); err == nil {
			if rerr := stats.Report(os.Stderr, count); rerr != nil {
				return rerr
			}
		}
	} else {
		n, err = vertexpack.Encode(out, input, stride)
	}
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out[:n])
	return err
}

func decodeAction(c *cli.Context) error {
	stride := c.Int("stride")
	if err := checkStride(stride); err != nil {
		return err
	}
	count := c.Int("count")
	if count < 0 {
		return fmt.Errorf("invalid count %d", count)
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	if c.Bool("planes") {
		out, err := vertexpack.DecodePlanes(nil, input, count, stride)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	out := make([]byte, count*stride)
	if _, err := vertexpack.Decode(out, input, count, stride); err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}

// truncateRecords keeps the first keep bytes of every stride-sized record.
func truncateRecords(input []byte, stride, keep int) ([]byte, error) {
	if stride < keep {
		return nil, fmt.Errorf("stride %d is too small to truncate to %d bytes", stride, keep)
	}
	if stride == keep {
		return input, nil
	}

	out := make([]byte, 0, len(input)/stride*keep)
	for off := 0; off < len(input); off += stride {
		out = append(out, input[off:off+keep]...)
	}
	return out, nil
}
