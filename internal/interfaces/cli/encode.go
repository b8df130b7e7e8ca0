package cli

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/turtacn/potencynet/internal/domain/molecule"
)

// NewEncodeCmd creates the encode command, which shows the integer sequence
// the network sees for a structure string.
func NewEncodeCmd() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "encode SMILES",
		Short: "Show the padded integer encoding of a SMILES string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			smiles := args[0]
			n := length
			if n == 0 {
				n = utf8.RuneCountInString(smiles)
			}
			enc, err := molecule.NewEncoder(n)
			if err != nil {
				return err
			}
			codes := enc.Encode(smiles)
			decoded, err := enc.Decode(codes)
			if err != nil {
				return err
			}
			return PrintResult(cmd, encodeView{
				SMILES:  smiles,
				Length:  n,
				Codes:   codes,
				Decoded: decoded,
				Lossy:   decoded != truncateRunes(smiles, n),
			})
		},
	}
	cmd.Flags().IntVarP(&length, "length", "l", 0, "sequence length (default: length of the input)")
	return cmd
}

type encodeView struct {
	SMILES  string `json:"smiles"`
	Length  int    `json:"length"`
	Codes   []int  `json:"codes"`
	Decoded string `json:"decoded"`
	// Lossy is set when characters outside the vocabulary were dropped.
	Lossy bool `json:"lossy"`
}

func (v encodeView) String() string {
	codes := make([]string, len(v.Codes))
	for i, c := range v.Codes {
		codes[i] = strconv.Itoa(c)
	}
	s := fmt.Sprintf("%s -> [%s]\ndecoded: %s", v.SMILES, strings.Join(codes, " "), v.Decoded)
	if v.Lossy {
		s += " (unknown characters dropped)"
	}
	return s
}

func (v encodeView) TableHeaders() []string {
	return []string{"Position", "Character", "Code"}
}

func (v encodeView) TableRows() [][]string {
	chars := []rune(v.SMILES)
	rows := make([][]string, len(v.Codes))
	for i, c := range v.Codes {
		ch := ""
		if i < len(chars) {
			ch = string(chars[i])
		}
		rows[i] = []string{strconv.Itoa(i), ch, strconv.Itoa(c)}
	}
	return rows
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
