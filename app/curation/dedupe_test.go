package curation

import (
	"context"
	"testing"
	"time"
)

func newTestDeduper(repo *memRepo) *Deduper {
	return &Deduper{
		articleRepo: repo,
		threshold:   0.85,
		window:      3 * 24 * time.Hour,
	}
}

func TestDeduper_ClustersSimilarCoverage(t *testing.T) {
	base := time.Now().UTC().Add(-6 * time.Hour)

	// Three takes on the same story: similarities to the first are 0.92 and
	// 0.88, both above the 0.85 threshold.
	repo := newMemRepo(
		processedArticle(1, 1, base, 0.8, embeddingAt(0)),
		processedArticle(2, 2, base.Add(time.Hour), 0.9, embeddingAt(angleFor(0.92))),
		processedArticle(3, 3, base.Add(2*time.Hour), 0.95, embeddingAt(-angleFor(0.88))),
		// An unrelated article stays canonical.
		processedArticle(4, 1, base.Add(time.Hour), 0.7, embeddingAt(1.2)),
	)

	result, err := newTestDeduper(repo).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Duplicates != 2 {
		t.Errorf("Expected 2 duplicates, got %d", result.Duplicates)
	}

	// The earliest coverage wins, regardless of relevance scores.
	for _, id := range []int64{2, 3} {
		a := repo.get(id)
		if !a.IsDuplicate || a.DuplicateOfID == nil || *a.DuplicateOfID != 1 {
			t.Errorf("Article %d should be a duplicate of 1, got %+v", id, a.DuplicateOfID)
		}
	}
	if repo.get(1).IsDuplicate {
		t.Error("The earliest article must stay canonical")
	}
	if repo.get(4).IsDuplicate {
		t.Error("An unrelated article must stay canonical")
	}
}

func TestDeduper_EarlierArrivalDemotesCanonical(t *testing.T) {
	base := time.Now().UTC().Add(-12 * time.Hour)

	// An existing cluster: 20 is canonical, 21 its duplicate.
	canonical := processedArticle(20, 1, base.Add(3*time.Hour), 0.9, embeddingAt(0))
	duplicate := processedArticle(21, 2, base.Add(4*time.Hour), 0.8, embeddingAt(angleFor(0.95)))
	duplicate.IsDuplicate = true
	duplicate.DuplicateOfID = &canonical.ID

	// A slow feed delivers the original, earlier-published story late.
	repo := newMemRepo(
		canonical,
		duplicate,
		processedArticle(22, 3, base, 0.7, embeddingAt(-angleFor(0.9))),
	)

	if _, err := newTestDeduper(repo).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	demoted := repo.get(20)
	if !demoted.IsDuplicate || demoted.DuplicateOfID == nil || *demoted.DuplicateOfID != 22 {
		t.Errorf("The later canonical should be demoted to a duplicate of 22, got %+v", demoted.DuplicateOfID)
	}

	// Its old duplicates follow, the cluster stays flat.
	moved := repo.get(21)
	if moved.DuplicateOfID == nil || *moved.DuplicateOfID != 22 {
		t.Errorf("Existing duplicates must be repointed to 22, got %+v", moved.DuplicateOfID)
	}

	if repo.get(22).IsDuplicate {
		t.Error("The earliest article must be canonical")
	}
}

func TestDeduper_Idempotent(t *testing.T) {
	base := time.Now().UTC().Add(-6 * time.Hour)
	repo := newMemRepo(
		processedArticle(1, 1, base, 0.8, embeddingAt(0)),
		processedArticle(2, 2, base.Add(time.Hour), 0.9, embeddingAt(angleFor(0.92))),
	)

	deduper := newTestDeduper(repo)
	if _, err := deduper.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	first := repo.get(2)

	result, err := deduper.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if result.Duplicates != 0 {
		t.Errorf("A rerun over an unchanged window must mark nothing, got %d", result.Duplicates)
	}

	second := repo.get(2)
	if *first.DuplicateOfID != *second.DuplicateOfID {
		t.Error("A rerun must not change cluster assignments")
	}
}

func TestDeduper_BelowThreshold(t *testing.T) {
	base := time.Now().UTC().Add(-6 * time.Hour)
	repo := newMemRepo(
		processedArticle(1, 1, base, 0.8, embeddingAt(0)),
		processedArticle(2, 2, base.Add(time.Hour), 0.9, embeddingAt(angleFor(0.80))),
	)

	result, err := newTestDeduper(repo).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Duplicates != 0 {
		t.Errorf("Similarity below the threshold must not cluster, got %d duplicates", result.Duplicates)
	}
}
