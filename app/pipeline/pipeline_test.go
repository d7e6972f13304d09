package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/dataset"
	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/source"
	"github.com/lysyi3m/ae-comb/app/table"
)

const (
	index2017 = "https://stats.example.org/ae-2017-18/"
	index2018 = "https://stats.example.org/ae-2018-19/"
)

const indexPage = `<html><body><ul>
<li><a href="/files/april-2018.csv">Monthly A&amp;E April 2018 (CSV, 30KB)</a></li>
<li><a href="/files/may-2018.csv">Monthly A&amp;E May 2018 (CSV, 30KB)</a></li>
<li><a href="/files/june-2018.csv">Monthly A&amp;E June 2018 (CSV, 30KB)</a></li>
<li><a href="/files/june-2018.xls">Monthly A&amp;E June 2018 (XLS, 60KB)</a></li>
<li><a href="/files/july-2018.csv">Monthly A&amp;E July 2018 (CSV, 30KB)</a></li>
</ul></body></html>`

const (
	aprilCSV = "Period,Org Code,Parent Org,Org name,Number of A&E attendances Type 1\n" +
		"MSitAE-APRIL-2018,R1,NHS England London,Barts,100\n" +
		"MSitAE-APRIL-2018,TOTAL,Total,England,100\n"
	mayCSV = "Period,Org Code,Parent Org,Org name,A&E attendances Type 1\n" +
		"MSitAE-MAY-2018,R1,NHS England London,Barts,110\n"
	juneCSV = "Period,Org Code,Parent Org,Org name,A&E attendances Type 1,Booked appointments\n" +
		"MSitAE-JUNE-2018,R1,NHS England London,Barts,120,4\n" +
		"MSitAE-JUNE-2018,R1,NHS England London,Barts,120,4\n" +
		"MSitAE-JUNE-2018,R2,NHS England Midlands,Leicester,80,\n"
)

func testSourceConfig(t *testing.T) *source.Config {
	t.Helper()
	cfg, err := source.ParseConfig([]byte(`
index_url: "https://stats.example.org/ae-{year}-{next_short}/"
link_marker: "Monthly A&E"
format_marker: "CSV"
parent_column: "Parent Org"
total_pattern: "total"
`))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newTestAcquirer(t *testing.T, transport *httpmock.MockTransport) *Acquirer {
	t.Helper()
	client := source.NewClient(&http.Client{Transport: transport}, source.ClientOptions{})
	a, err := NewAcquirer(client, testSourceConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	a.now = func() time.Time { return time.Date(2018, time.June, 15, 0, 0, 0, 0, time.UTC) }
	return a
}

func publisher() *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", index2017, httpmock.NewStringResponder(404, "gone"))
	transport.RegisterResponder("GET", index2018, httpmock.NewStringResponder(200, indexPage))
	transport.RegisterResponder("GET", "https://stats.example.org/files/april-2018.csv", httpmock.NewStringResponder(200, aprilCSV))
	transport.RegisterResponder("GET", "https://stats.example.org/files/may-2018.csv", httpmock.NewStringResponder(200, mayCSV))
	transport.RegisterResponder("GET", "https://stats.example.org/files/june-2018.csv", httpmock.NewStringResponder(200, juneCSV))
	return transport
}

func values(t *testing.T, tbl *table.Table, name string) []string {
	t.Helper()
	c, ok := tbl.Column(name)
	if !ok {
		t.Fatalf("Expected column %q, got %v", name, tbl.Columns())
	}
	out := make([]string, len(c.Cells))
	for i, cell := range c.Cells {
		out[i] = cell.String()
	}
	return out
}

func TestAcquireDataset_EndToEnd(t *testing.T) {
	transport := publisher()
	a := newTestAcquirer(t, transport)

	got, report, err := a.AcquireDataset(context.Background(), "April 2018", "June 2018")
	if err != nil {
		t.Fatal(err)
	}

	expectedColumns := []string{"Period", "Org Code", "Parent Org", "Org name", "A&E attendances Type 1", "Year", "Month"}
	if diff := cmp.Diff(expectedColumns, got.Columns()); diff != "" {
		t.Errorf("Unexpected columns (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"2018-04", "2018-05", "2018-06", "2018-06"}, values(t, got, "Period")); diff != "" {
		t.Errorf("Unexpected periods (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"100", "110", "120", "80"}, values(t, got, "A&E attendances Type 1")); diff != "" {
		t.Errorf("Unexpected attendances (-want +got):\n%s", diff)
	}

	for _, mc := range got.MissingCounts() {
		if mc.Count != 0 {
			t.Errorf("Expected no missing values in %q, got %d", mc.Column, mc.Count)
		}
	}

	if report.Failed(source.StageIndex) != 1 {
		t.Errorf("Expected 1 index failure, got %d", report.Failed(source.StageIndex))
	}
	if report.Succeeded(source.StageRelease) != 3 {
		t.Errorf("Expected 3 fetched releases, got %d", report.Succeeded(source.StageRelease))
	}

	calls := transport.GetCallCountInfo()
	if calls["GET https://stats.example.org/files/july-2018.csv"] != 0 || calls["GET https://stats.example.org/files/june-2018.xls"] != 0 {
		t.Errorf("Expected out-of-range and non-CSV releases to be skipped, got %v", calls)
	}
}

type recordingGetter struct {
	next source.Getter
	urls []string
}

func (g *recordingGetter) Get(ctx context.Context, url string) ([]byte, error) {
	g.urls = append(g.urls, url)
	return g.next.Get(ctx, url)
}

func TestAcquireDataset_ReleaseGetter(t *testing.T) {
	transport := publisher()
	a := newTestAcquirer(t, transport)

	releases := &recordingGetter{next: source.NewClient(&http.Client{Transport: transport}, source.ClientOptions{})}
	a.UseReleaseGetter(releases)

	if _, _, err := a.AcquireDataset(context.Background(), "April 2018", "June 2018"); err != nil {
		t.Fatal(err)
	}

	expected := []string{
		"https://stats.example.org/files/april-2018.csv",
		"https://stats.example.org/files/may-2018.csv",
		"https://stats.example.org/files/june-2018.csv",
	}
	if diff := cmp.Diff(expected, releases.urls); diff != "" {
		t.Errorf("Unexpected release requests (-want +got):\n%s", diff)
	}
}

func TestAcquireDataset_InvalidDates(t *testing.T) {
	transport := httpmock.NewMockTransport()
	a := newTestAcquirer(t, transport)

	for _, tc := range [][2]string{{"13th Month 2020", ""}, {"Apr 2020", "June 2020"}, {"June 2020", "April 2020"}} {
		_, _, err := a.AcquireDataset(context.Background(), tc[0], tc[1])
		if !errors.Is(err, period.ErrInvalidDateFormat) {
			t.Errorf("%v: expected ErrInvalidDateFormat, got %v", tc, err)
		}
	}

	if n := transport.GetTotalCallCount(); n != 0 {
		t.Errorf("Expected no requests before validation, got %d", n)
	}
}

func TestAcquireDataset_OnlyIndexFails(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.NewStringResponder(503, "down"))
	a := newTestAcquirer(t, transport)
	a.now = func() time.Time { return time.Date(2019, time.February, 1, 0, 0, 0, 0, time.UTC) }

	_, report, err := a.AcquireDataset(context.Background(), "January 2019", "")
	if !errors.Is(err, dataset.ErrEmptyResult) {
		t.Fatalf("Expected ErrEmptyResult, got %v", err)
	}
	if report == nil || report.Failed(source.StageIndex) != 2 {
		t.Errorf("Expected 2 recorded index failures, got %+v", report)
	}
}

type memorySink struct {
	tables map[string]*table.Table
	err    error
}

func (m *memorySink) ReplaceTable(ctx context.Context, name string, t *table.Table) error {
	if m.err != nil {
		return m.err
	}
	if m.tables == nil {
		m.tables = make(map[string]*table.Table)
	}
	m.tables[name] = t
	return nil
}

func (m *memorySink) LatestRows(ctx context.Context, name string, limit int) (*table.Table, error) {
	return m.tables[name], nil
}

type memoryRecorder struct {
	started  []database.Run
	finished []database.Run
}

func (m *memoryRecorder) StartRun(ctx context.Context, run *database.Run) error {
	m.started = append(m.started, *run)
	return nil
}

func (m *memoryRecorder) FinishRun(ctx context.Context, run *database.Run) error {
	m.finished = append(m.finished, *run)
	return nil
}

func TestRunner_Run(t *testing.T) {
	sink := &memorySink{}
	recorder := &memoryRecorder{}
	output := filepath.Join(t.TempDir(), "ae.csv")

	runner := NewRunner(newTestAcquirer(t, publisher()), sink, recorder, RunnerOptions{TableName: "ae", OutputFile: output})

	res, err := runner.Run(context.Background(), "April 2018", "June 2018")
	if err != nil {
		t.Fatal(err)
	}

	if sink.tables["ae"] != res.Table {
		t.Error("Expected clean table to be handed to the sink")
	}
	if res.Summary.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", res.Summary.Duplicates)
	}

	if len(recorder.started) != 1 || len(recorder.finished) != 1 {
		t.Fatalf("Expected one recorded run, got %d/%d", len(recorder.started), len(recorder.finished))
	}
	run := recorder.finished[0]
	if run.Status != database.RunStatusSucceeded {
		t.Errorf("Expected succeeded run, got %s (%s)", run.Status, run.Error)
	}
	if run.StartMonth != "2018-04" || run.EndMonth != "2018-06" {
		t.Errorf("Unexpected run range %s - %s", run.StartMonth, run.EndMonth)
	}
	if run.RowsWritten != 4 || run.ReleasesFetched != 3 || run.IndexFailures != 1 {
		t.Errorf("Unexpected run counts %+v", run)
	}
	if run.ID != res.Report.RunID {
		t.Errorf("Expected run id %s, got %s", res.Report.RunID, run.ID)
	}

	if last := runner.LastRun(); last == nil || last.ID != run.ID {
		t.Errorf("Expected last run %s, got %+v", run.ID, last)
	}
}

func TestRunner_PersistenceFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	recorder := &memoryRecorder{}

	runner := NewRunner(newTestAcquirer(t, publisher()), sink, recorder, RunnerOptions{TableName: "ae"})

	_, err := runner.Run(context.Background(), "April 2018", "June 2018")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Expected ErrPersistence, got %v", err)
	}

	if len(recorder.finished) != 1 || recorder.finished[0].Status != database.RunStatusFailed {
		t.Fatalf("Expected failed run to be recorded, got %+v", recorder.finished)
	}
	if recorder.finished[0].Error == "" {
		t.Error("Expected run error message")
	}
}

func TestRunner_WithoutSink(t *testing.T) {
	runner := NewRunner(newTestAcquirer(t, publisher()), nil, nil, RunnerOptions{TableName: "ae"})

	res, err := runner.Run(context.Background(), "May 2018", "May 2018")
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.NumRows() != 1 {
		t.Errorf("Expected 1 row, got %d", res.Table.NumRows())
	}
	if last := runner.LastRun(); last == nil || last.RowsWritten != 0 {
		t.Errorf("Expected no rows written without a sink, got %+v", last)
	}
}
