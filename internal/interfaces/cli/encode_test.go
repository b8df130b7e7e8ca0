package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCmd(t *testing.T) {
	cfgPath := writeConfig(t, "")

	tests := []struct {
		name    string
		args    []string
		codes   []int
		decoded string
		lossy   bool
	}{
		{"natural length", []string{"CCO"}, []int{8, 8, 28}, "CCO", false},
		{"padded", []string{"CCO", "--length", "5"}, []int{8, 8, 28, 0, 0}, "CCO", false},
		{"truncated", []string{"c1ccccc1", "-l", "2"}, []int{12, 27}, "c1", false},
		{"unknown character", []string{"CXO"}, []int{8, 0, 28}, "CO", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfgPath, "-o", "json", "encode"}, tt.args...)
			stdout, _, err := executeCommand(t, args...)
			require.NoError(t, err)

			var got encodeView
			require.NoError(t, json.Unmarshal([]byte(stdout), &got))
			assert.Equal(t, tt.codes, got.Codes)
			assert.Equal(t, len(tt.codes), got.Length)
			assert.Equal(t, tt.decoded, got.Decoded)
			assert.Equal(t, tt.lossy, got.Lossy)
		})
	}
}

func TestEncodeCmd_Text(t *testing.T) {
	stdout, _, err := executeCommand(t, "--config", writeConfig(t, ""), "encode", "CCO")
	require.NoError(t, err)
	assert.Equal(t, "CCO -> [8 8 28]\ndecoded: CCO\n", stdout)
}

func TestEncodeCmd_RequiresOneArgument(t *testing.T) {
	_, _, err := executeCommand(t, "--config", writeConfig(t, ""), "encode")
	require.Error(t, err)
}

func TestEncodeView_TableRows(t *testing.T) {
	v := encodeView{SMILES: "CO", Codes: []int{8, 28, 0}}
	assert.Equal(t, [][]string{{"0", "C", "8"}, {"1", "O", "28"}, {"2", "", "0"}}, v.TableRows())
}
