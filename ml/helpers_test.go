package ml

import (
	"fmt"
	"strconv"
)

var (
	testEselon   = []string{"A", "B", "C"}
	testKorwil   = []string{"K1", "K2"}
	testKantor   = []string{"pusat", "daerah"}
	testBangunan = []string{"1", "2", "3"}
)

// testDataset builds a deterministic dataset whose target depends on the
// staff counts and the building type.
func testDataset(n int) *Dataset {
	ds := &Dataset{Columns: RequiredColumns()}
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(ds.Columns))
		var staff float64
		for j := range numericNames {
			v := float64((i*7 + j*3) % 11)
			staff += v
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		bangunan := testBangunan[i%3]
		row = append(row,
			testEselon[i%3],
			testKorwil[i%2],
			testKantor[(i/2)%2],
			bangunan,
		)
		target := staff*9.5 + float64(i%3)*40
		row = append(row, fmt.Sprintf("%.2f", target))
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func testRecord() Record {
	rec := Record{}
	for j, name := range numericNames {
		rec[name] = strconv.Itoa((j * 3) % 11)
	}
	rec["kode_eselon_i"] = "A"
	rec["kode_korwil"] = "K1"
	rec["tipe_kantor"] = "pusat"
	rec["tipe_bangunan"] = "1"
	return rec
}

func columnIndex(name string) int {
	for i, n := range numericNames {
		if n == name {
			return i
		}
	}
	return -1
}

func mustTrain(ds *Dataset) *Pipeline {
	p, _, err := Train(ds, DefaultTrainConfig())
	if err != nil {
		panic(err)
	}
	return p
}
