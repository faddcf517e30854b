package train

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestRows() []ManifestRow {
	return []ManifestRow{
		{DocID: "train-00001", ImagePath: "images/a.png", PAbnormal: 0.83, Label: 1},
		{DocID: "train-00002", ImagePath: "images/b.png", PAbnormal: 0.12, Label: 2},
	}
}

func TestWriteManifest_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	err := WriteManifest(path, manifestRows())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, []string{"doc_id", "image_path", "p_abnormal", "label"}, recs[0])
	assert.Equal(t, []string{"train-00001", "images/a.png", "0.83", "1"}, recs[1])
	assert.Equal(t, []string{"train-00002", "images/b.png", "0.12", "2"}, recs[2])
}

func TestWriteManifest_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	err := WriteManifest(path, manifestRows())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var rows []ManifestRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ManifestRow
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		rows = append(rows, r)
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, manifestRows(), rows)
}

func TestWriteManifest_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	err := WriteManifest(path, nil)
	assert.ErrorContains(t, err, "no rows")
}

func TestWriteManifest_BadExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	err := WriteManifest(path, manifestRows())
	assert.ErrorContains(t, err, "unsupported manifest format")
}

func writeScoresFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestReadScores(t *testing.T) {
	path := writeScoresFile(t, "doc_id,score\ntest-00001,0.91\ntest-00002,0\n")

	scores, err := ReadScores(path)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.91, scores["test-00001"], 0.0001)
	assert.InDelta(t, 0.0, scores["test-00002"], 0.0001)
}

func TestReadScores_PAbnormalColumn(t *testing.T) {
	path := writeScoresFile(t, "doc_id,p_abnormal\ndev-00001,0.5\n")

	scores, err := ReadScores(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores["dev-00001"], 0.0001)
}

func TestReadScores_ExtraColumns(t *testing.T) {
	path := writeScoresFile(t, "epoch,DOC_ID,loss,Score\n3,test-00001,0.2,0.75\n")

	scores, err := ReadScores(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, scores["test-00001"], 0.0001)
}

func TestReadScores_RoundTrip(t *testing.T) {
	// the exported manifest doubles as a valid score file
	path := filepath.Join(t.TempDir(), "manifest.csv")
	require.NoError(t, WriteManifest(path, manifestRows()))

	scores, err := ReadScores(path)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.83, scores["train-00001"], 0.0001)
	assert.InDelta(t, 0.12, scores["train-00002"], 0.0001)
}

func TestReadScores_MissingFile(t *testing.T) {
	_, err := ReadScores(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestReadScores_EmptyFile(t *testing.T) {
	path := writeScoresFile(t, "")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "missing header")
}

func TestReadScores_MissingColumn(t *testing.T) {
	path := writeScoresFile(t, "doc_id,value\na,0.5\n")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "missing required column")
}

func TestReadScores_BadScore(t *testing.T) {
	path := writeScoresFile(t, "doc_id,score\na,high\n")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "row 2: bad score")
}

func TestReadScores_ScoreOutOfRange(t *testing.T) {
	path := writeScoresFile(t, "doc_id,score\na,0.4\nb,1.5\n")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "row 3: score must be in [0, 1]")
}

func TestReadScores_DuplicateDoc(t *testing.T) {
	path := writeScoresFile(t, "doc_id,score\na,0.4\na,0.6\n")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "row 3: duplicate doc_id")
}

func TestReadScores_EmptyDocID(t *testing.T) {
	path := writeScoresFile(t, "doc_id,score\n  ,0.4\n")
	_, err := ReadScores(path)
	assert.ErrorContains(t, err, "row 2: doc_id is empty")
}
