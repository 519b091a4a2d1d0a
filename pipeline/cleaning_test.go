package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeColumn(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already normal", in: "toilet", want: "toilet"},
		{name: "spaces and case", in: "Jumlah Pegawai", want: "jumlah_pegawai"},
		{name: "surrounding whitespace", in: "  R Server \t", want: "r_server"},
		{name: "dash kept", in: "F-IV", want: "f-iv"},
		{name: "target", in: "Luas SBSK", want: "luas_sbsk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColumn(tt.in))
		})
	}
}

func TestHeaderCleanerRenames(t *testing.T) {
	cleaner := NewHeaderCleaner(map[string]string{"Kode Wilayah": "kode_korwil"})
	got, issues := cleaner.Clean([]string{
		"Tipe Bangunan\n(isi dengan angka 1 - 3)",
		"Kode Wilayah",
		"Toilet",
		"",
	})

	assert.Equal(t, []string{"tipe_bangunan", "kode_korwil", "toilet", ""}, got)
	var types []string
	for _, issue := range issues {
		types = append(types, issue.Type)
	}
	assert.Equal(t, []string{"rename", "rename", "empty_header"}, types)
}

func TestRenameRuleTrimmedMatch(t *testing.T) {
	rule := NewRenameRule(map[string]string{"Kantor": "tipe_kantor"})
	assert.Equal(t, "tipe_kantor", rule.Apply(" Kantor "))
	assert.Equal(t, "Lainnya", rule.Apply("Lainnya"))
}
