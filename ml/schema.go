package ml

// FieldKind tells the coercion loop how to treat a field.
type FieldKind int

const (
	Numeric FieldKind = iota
	Categorical
)

func (k FieldKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Field is one entry of the ordered input schema. Default is used when a
// request leaves the field absent or empty.
type Field struct {
	Name    string
	Kind    FieldKind
	Default string
}

// TargetColumn is the floor-space requirement the pipeline predicts.
const TargetColumn = "luas_sbsk"

var numericNames = []string{
	"menteri", "wamen", "es_ia_kk", "es_ia_nkk", "es_ib",
	"es_iia_kk", "es_iia_nkk", "es_iib", "es_iii_kk",
	"es_iii_nkk", "es_iv_kk", "es_iv_nkk", "es_v",
	"f-iv", "f-iii", "pelaksana", "jumlah_pegawai",
	"jumlah_pengunjung", "luas_gk_eksisting", "rkerja",
	"rarsip", "r_fungsional", "toilet", "r_server",
	"r_layanan", "lobby", "nisbah",
}

var categoricalNames = []string{
	"kode_eselon_i", "kode_korwil", "tipe_kantor", "tipe_bangunan",
}

var fields = buildFields()

func buildFields() []Field {
	out := make([]Field, 0, len(numericNames)+len(categoricalNames))
	for _, name := range numericNames {
		out = append(out, Field{Name: name, Kind: Numeric, Default: "0"})
	}
	for _, name := range categoricalNames {
		out = append(out, Field{Name: name, Kind: Categorical, Default: ""})
	}
	return out
}

// Fields returns the input schema: numeric fields first, then categorical,
// each group in feature order.
func Fields() []Field {
	return append([]Field(nil), fields...)
}

func NumericFields() []string {
	return append([]string(nil), numericNames...)
}

func CategoricalFields() []string {
	return append([]string(nil), categoricalNames...)
}

// RequiredColumns lists every column a training dataset must carry.
func RequiredColumns() []string {
	out := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, f.Name)
	}
	return append(out, TargetColumn)
}
