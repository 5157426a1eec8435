package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kshedden/datareader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"i94_etl/internal/logging"
	"i94_etl/internal/storage"
	"i94_etl/internal/table"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Store:   storage.NewLocal(),
		TempDir: t.TempDir(),
		Workers: 4,
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// readParquet returns the row count and the values of one leaf column.
func readParquet(t *testing.T, path string, column int64) (int64, []any) {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	n := pr.GetNumRows()
	values, _, _, err := pr.ReadColumnByIndex(column, n)
	require.NoError(t, err)
	return n, values
}

func parquetFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(p, ".parquet") {
			out = append(out, p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{TempDir: t.TempDir(), Logger: logging.Discard()})
	assert.Error(t, err)
	_, err = New(Config{Store: storage.NewLocal(), Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	in := "\ufeffdt,AverageTemperature,City,Country\n" +
		"1980-01-01,2.5,Boston,United States\n" +
		"\n" +
		"1743-11-01,,Århus,Denmark\n" +
		"1980-02-01,1.0,\"Salt Lake City, UT\"\n"

	tbl, err := parseCSV(strings.NewReader(in), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"dt", "AverageTemperature", "City", "Country"}, tbl.ColumnNames())
	want := [][]any{
		{"1980-01-01", "2.5", "Boston", "United States"},
		{"1743-11-01", nil, "Århus", "Denmark"},
		{"1980-02-01", "1.0", "Salt Lake City, UT", nil},
	}
	if diff := cmp.Diff(want, tbl.Rows()); diff != "" {
		t.Errorf("parseCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCSV_Semicolon(t *testing.T) {
	in := "City;State;Median Age\nSilver Spring;Maryland;33.8\n"
	tbl, err := parseCSV(strings.NewReader(in), ReadOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"City", "State", "Median Age"}, tbl.ColumnNames())
	assert.Equal(t, []any{"Silver Spring", "Maryland", "33.8"}, tbl.Row(0))
}

func TestParseCSV_NoHeader(t *testing.T) {
	tbl, err := parseCSV(strings.NewReader("a,b\nc,d\n"), ReadOptions{NoHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"_c0", "_c1"}, tbl.ColumnNames())
	assert.Equal(t, 2, tbl.Len())
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := parseCSV(strings.NewReader(""), ReadOptions{})
	assert.Error(t, err)
}

func TestRead_CSVFromStore(t *testing.T) {
	e := newTestEngine(t)
	p := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(p, []byte("a,b\n1,2\n"), 0644))

	tbl, err := e.Read(context.Background(), FormatCSV, p, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())

	_, err = e.Read(context.Background(), FormatCSV, filepath.Join(t.TempDir(), "missing.csv"), ReadOptions{})
	assert.Error(t, err)

	_, err = e.Read(context.Background(), Format("json"), p, ReadOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadLines(t *testing.T) {
	e := newTestEngine(t)
	p := filepath.Join(t.TempDir(), "labels.SAS")
	require.NoError(t, os.WriteFile(p, []byte("line one\r\n   101 =  'ALGERIA'\r\nlast"), 0644))

	lines, err := e.ReadLines(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "   101 =  'ALGERIA'", "last"}, lines)
}

func TestBuildSASTable(t *testing.T) {
	cols := []*rawColumn{
		{name: "cicid", numeric: true, floats: []float64{6, 7, 8}, missing: []bool{false, false, false}},
		{name: "arrdate", numeric: true, floats: []float64{20545, 0, 20546.5}, missing: []bool{false, true, false}},
		{name: "i94addr", strs: []string{"CA  ", "", "NY"}, missing: []bool{false, false, false}},
	}

	tbl, err := buildSASTable(cols, true)
	require.NoError(t, err)
	assert.Equal(t, []table.Column{
		{Name: "cicid", Type: table.Int64},
		{Name: "arrdate", Type: table.Float64},
		{Name: "i94addr", Type: table.String},
	}, tbl.Columns())
	want := [][]any{
		{int64(6), 20545.0, "CA"},
		{int64(7), nil, nil},
		{int64(8), 20546.5, "NY"},
	}
	if diff := cmp.Diff(want, tbl.Rows()); diff != "" {
		t.Errorf("buildSASTable() mismatch (-want +got):\n%s", diff)
	}

	tbl, err = buildSASTable(cols, false)
	require.NoError(t, err)
	assert.Equal(t, table.Float64, tbl.Columns()[0].Type)
	assert.Equal(t, 6.0, tbl.Row(0)[0])
}

// testdata/test1.sas7bdat comes from datareader's test files: 10 rows of
// 100 columns Column1..Column100 cycling float, string, int, int.
const sasFixture = "testdata/test1.sas7bdat"

func TestRead_SAS7BDAT(t *testing.T) {
	e := newTestEngine(t)

	tbl, err := e.Read(context.Background(), FormatSAS7BDAT, sasFixture, ReadOptions{LowercaseNames: true, InferLong: true})
	require.NoError(t, err)
	require.Equal(t, 10, tbl.Len())
	require.Len(t, tbl.Columns(), 100)
	assert.Equal(t, []table.Column{
		{Name: "column1", Type: table.Float64},
		{Name: "column2", Type: table.String},
		{Name: "column3", Type: table.Int64},
		{Name: "column4", Type: table.Int64},
	}, tbl.Columns()[:4])

	col1, err := tbl.Column("column1")
	require.NoError(t, err)
	assert.InDelta(t, 0.636, col1[0], 0.0005)
	assert.Nil(t, col1[8])

	col2, err := tbl.Column("column2")
	require.NoError(t, err)
	assert.Equal(t, []any{"pear", "dog", "pear", "dog", nil, "dog", "crocodile", "crocodile", "pear", "pear"}, col2)

	col3, err := tbl.Column("column3")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(84), int64(49), int64(35), int64(29), int64(55),
		int64(33), int64(17), int64(37), int64(15), nil}, col3)

	col4, err := tbl.Column("column4")
	require.NoError(t, err)
	assert.Equal(t, int64(2170), col4[0])
	assert.Equal(t, int64(7735), col4[9])
}

func TestRead_SAS7BDATOptions(t *testing.T) {
	e := newTestEngine(t)

	tbl, err := e.Read(context.Background(), FormatSAS7BDAT, sasFixture, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Column1", tbl.Columns()[0].Name)
	assert.Equal(t, table.Float64, tbl.Columns()[2].Type)
	v, err := tbl.Value(0, "Column3")
	require.NoError(t, err)
	assert.Equal(t, 84.0, v)
}

func TestRead_SAS7BDATInChunks(t *testing.T) {
	e := newTestEngine(t)
	opts := ReadOptions{LowercaseNames: true, InferLong: true}

	whole, err := e.Read(context.Background(), FormatSAS7BDAT, sasFixture, opts)
	require.NoError(t, err)

	saved := sasChunkRows
	sasChunkRows = 3
	t.Cleanup(func() { sasChunkRows = saved })

	chunked, err := e.Read(context.Background(), FormatSAS7BDAT, sasFixture, opts)
	require.NoError(t, err)
	assert.Equal(t, whole.Columns(), chunked.Columns())
	if diff := cmp.Diff(whole.Rows(), chunked.Rows()); diff != "" {
		t.Errorf("chunked read mismatch (-whole +chunked):\n%s", diff)
	}
}

func TestRead_SAS7BDATErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Read(context.Background(), FormatSAS7BDAT, filepath.Join(t.TempDir(), "missing.sas7bdat"), ReadOptions{})
	assert.Error(t, err)

	notSAS := filepath.Join(t.TempDir(), "labels.SAS")
	require.NoError(t, os.WriteFile(notSAS, []byte("value i94cntyl\n  101 = 'ALGERIA'\n"), 0644))
	_, err = e.Read(context.Background(), FormatSAS7BDAT, notSAS, ReadOptions{})
	assert.Error(t, err)
}

func TestAppendSeries_DateColumn(t *testing.T) {
	dates, err := datareader.NewSeries("arrdate", []time.Time{
		time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC),
		{},
	}, []bool{false, true})
	require.NoError(t, err)

	cols := []*rawColumn{{name: "arrdate"}}
	require.NoError(t, appendSeries(cols, []*datareader.Series{dates}))

	tbl, err := buildSASTable(cols, true)
	require.NoError(t, err)
	assert.Equal(t, table.Int64, tbl.Columns()[0].Type)
	assert.Equal(t, [][]any{{int64(20545)}, {nil}}, tbl.Rows())
}

func TestAppendSeries_ColumnCountMismatch(t *testing.T) {
	s, err := datareader.NewSeries("a", []float64{1}, nil)
	require.NoError(t, err)
	err = appendSeries([]*rawColumn{{name: "a"}, {name: "b"}}, []*datareader.Series{s})
	assert.Error(t, err)
}

func TestBuildSASTable_RaggedColumns(t *testing.T) {
	_, err := buildSASTable([]*rawColumn{
		{name: "a", numeric: true, floats: []float64{1}, missing: []bool{false}},
		{name: "b", strs: []string{}, missing: []bool{}},
	}, false)
	assert.Error(t, err)
}

func TestEpochDays(t *testing.T) {
	assert.Equal(t, int32(0), epochDays(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int32(16892), epochDays(time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int32(-3653), epochDays(time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int32(-82606), epochDays(time.Date(1743, 11, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParquetValue(t *testing.T) {
	v, err := parquetValue(nil, table.Int64)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = parquetValue("12", table.Int64)
	assert.Error(t, err)

	v, err = parquetValue(time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC), table.Date)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
}

func TestPartitionValue(t *testing.T) {
	assert.Equal(t, "CA", PartitionValue("CA"))
	assert.Equal(t, DefaultPartition, PartitionValue(nil))
	assert.Equal(t, DefaultPartition, PartitionValue(""))
	assert.Equal(t, "2016", PartitionValue(int64(2016)))
	assert.Equal(t, "1.5", PartitionValue(1.5))
	assert.Equal(t, "2016-04-01", PartitionValue(time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "a%2Fb%3Dc", PartitionValue("a/b=c"))
	assert.Equal(t, "SALT LAKE CITY", PartitionValue("SALT LAKE CITY"))
}

func immigrationFixture() *table.Table {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	return table.MustNew(
		[]table.Column{
			{Name: "cic_id", Type: table.Int64},
			{Name: "state_code", Type: table.String},
			{Name: "arrive_date", Type: table.Date},
			{Name: "visa", Type: table.Float64},
			{Name: "country", Type: table.String},
		},
		[][]any{
			{int64(1), "CA", d(2016, 4, 1), 2.0, "United States"},
			{int64(2), "NY", d(2016, 4, 2), 1.0, "United States"},
			{int64(3), "CA", nil, nil, "United States"},
			{int64(4), nil, d(2016, 4, 3), 3.0, "United States"},
		},
	)
}

func TestWrite_Unpartitioned(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out", "d_airline")

	res, err := e.Write(context.Background(), immigrationFixture(), dest, Overwrite)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Rows)
	assert.Equal(t, 1, res.Files)
	assert.Positive(t, res.Bytes)
	assert.FileExists(t, filepath.Join(dest, SuccessMarker))

	files := parquetFiles(t, dest)
	require.Len(t, files, 1)
	n, states := readParquet(t, files[0], 1)
	assert.Equal(t, int64(4), n)
	assert.Contains(t, states, "NY")
}

func TestWrite_PartitionedByState(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "f_immigration")

	res, err := e.Write(context.Background(), immigrationFixture(), dest, Overwrite, "state_code")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Rows)
	assert.Equal(t, 3, res.Files)

	for _, dir := range []string{"state_code=CA", "state_code=NY", "state_code=" + DefaultPartition} {
		files := parquetFiles(t, filepath.Join(dest, dir))
		require.Len(t, files, 1, dir)
	}

	caFiles := parquetFiles(t, filepath.Join(dest, "state_code=CA"))
	n, countries := readParquet(t, caFiles[0], 3)
	assert.Equal(t, int64(2), n)
	// Without the partition column, leaf 3 is country.
	assert.Equal(t, []any{"United States", "United States"}, countries)
}

func TestWrite_OverwriteReplacesPreviousOutput(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "f_immigration")
	ctx := context.Background()

	_, err := e.Write(ctx, immigrationFixture(), dest, Overwrite, "state_code")
	require.NoError(t, err)
	stale := filepath.Join(dest, "state_code=ZZ", "part-00000-old.snappy.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0644))

	_, err = e.Write(ctx, immigrationFixture(), dest, Overwrite, "state_code")
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.Len(t, parquetFiles(t, dest), 3)
}

func TestWrite_ErrorIfExists(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "d_citizen")
	ctx := context.Background()

	_, err := e.Write(ctx, immigrationFixture(), dest, ErrorIfExists)
	require.NoError(t, err)

	_, err = e.Write(ctx, immigrationFixture(), dest, ErrorIfExists)
	assert.ErrorIs(t, err, ErrDestinationExists)
}

func TestWrite_Errors(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "x")
	ctx := context.Background()

	_, err := e.Write(ctx, immigrationFixture(), dest, Overwrite, "state_code", "visa")
	assert.Error(t, err)

	_, err = e.Write(ctx, immigrationFixture(), dest, Overwrite, "zip")
	assert.ErrorIs(t, err, table.ErrColumnNotFound)

	bad := table.MustNew([]table.Column{{Name: "n", Type: table.Int64}}, [][]any{{"not a number"}})
	_, err = e.Write(ctx, bad, dest, Overwrite)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dest, SuccessMarker))
}

func TestWrite_EmptyTable(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "empty")
	empty := table.MustNew([]table.Column{{Name: "code", Type: table.String}}, nil)

	res, err := e.Write(context.Background(), empty, dest, Overwrite)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Rows)
	assert.Equal(t, 1, res.Files)
}
