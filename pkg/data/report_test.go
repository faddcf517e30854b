package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReports() []*Report {
	abnormal := GoldAbnormal
	normal := GoldNormal
	return []*Report{
		{
			DocID:     "doc-001",
			Split:     SplitTrain,
			XrayPaths: []string{"img/001_frontal.jpg", "img/001_lateral.jpg"},
			Text:      "IMPRESSION: Right lower lobe consolidation.",
		},
		{
			DocID:     "doc-002",
			Split:     SplitDev,
			Gold:      &abnormal,
			XrayPaths: []string{"img/002_frontal.jpg"},
			Text:      "IMPRESSION: Moderate left pleural effusion.",
		},
		{
			DocID:     "doc-003",
			Split:     SplitDev,
			Gold:      &normal,
			XrayPaths: []string{"img/003_frontal.jpg"},
			Text:      "IMPRESSION: No acute cardiopulmonary abnormality.",
		},
	}
}

func TestSaveReports_NilDB(t *testing.T) {
	_, err := SaveReports(nil, testReports())
	assert.Error(t, err)
}

func TestSaveAndGetReport(t *testing.T) {
	db := setupTestDB(t)

	n, err := SaveReports(db, testReports())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := GetReport(db, "doc-002")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, SplitDev, got.Split)
	require.NotNil(t, got.Gold)
	assert.Equal(t, GoldAbnormal, *got.Gold)
	assert.Equal(t, []string{"img/002_frontal.jpg"}, got.XrayPaths)
	assert.Contains(t, got.Text, "pleural effusion")
	assert.False(t, got.ImgOK)
	assert.Nil(t, got.ImgWidth)
}

func TestGetReport_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := GetReport(db, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetReports_EmptyDB(t *testing.T) {
	db := setupTestDB(t)
	list, err := GetReports(db, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetReports_OrderAndFilter(t *testing.T) {
	db := setupTestDB(t)
	_, err := SaveReports(db, testReports())
	require.NoError(t, err)

	all, err := GetReports(db, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "doc-001", all[0].DocID)
	assert.Equal(t, "doc-002", all[1].DocID)
	assert.Equal(t, "doc-003", all[2].DocID)

	dev := SplitDev
	devOnly, err := GetReports(db, &dev)
	require.NoError(t, err)
	require.Len(t, devOnly, 2)
	for _, r := range devOnly {
		assert.Equal(t, SplitDev, r.Split)
	}
}

func TestSaveReports_Upsert(t *testing.T) {
	db := setupTestDB(t)
	reports := testReports()
	_, err := SaveReports(db, reports)
	require.NoError(t, err)

	reports[0].Text = "IMPRESSION: Interval resolution of consolidation."
	reports[0].Split = SplitTest
	_, err = SaveReports(db, reports[:1])
	require.NoError(t, err)

	got, err := GetReport(db, "doc-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, SplitTest, got.Split)
	assert.Contains(t, got.Text, "Interval resolution")

	all, err := GetReports(db, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateImageAudit(t *testing.T) {
	db := setupTestDB(t)
	_, err := SaveReports(db, testReports())
	require.NoError(t, err)

	err = UpdateImageAudit(db, "doc-001", 2048, 2495, 142.7, true)
	require.NoError(t, err)

	got, err := GetReport(db, "doc-001")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NotNil(t, got.ImgWidth)
	assert.Equal(t, 2048, *got.ImgWidth)
	require.NotNil(t, got.ImgHeight)
	assert.Equal(t, 2495, *got.ImgHeight)
	require.NotNil(t, got.ImgMean)
	assert.InDelta(t, 142.7, *got.ImgMean, 1e-9)
	assert.True(t, got.ImgOK)
}

func TestPrimaryXray(t *testing.T) {
	r := &Report{XrayPaths: []string{"a.jpg", "b.jpg"}}
	assert.Equal(t, "a.jpg", r.PrimaryXray())

	empty := &Report{}
	assert.Equal(t, "", empty.PrimaryXray())
}
