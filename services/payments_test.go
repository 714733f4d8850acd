package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/Kousuke-irie/bicycle-market/models"
)

// 退回 → 再アップロードで証明書だけ pending に戻り、支払いは awaiting_confirmation のまま
func TestProofRejectThenReupload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 18000).ID)

	uploaded := f.uploadProof(t, order.ID, f.buyer.ID, "first.pdf")
	if uploaded.Payment.Status != models.PaymentAwaitingConfirmation || uploaded.Payment.ProofStatus() != models.ProofPending {
		t.Fatalf("after upload: payment=%s proof=%s", uploaded.Payment.Status, uploaded.Payment.ProofStatus())
	}
	first := uploaded.Payment.CurrentProof()
	if _, err := os.Stat(filepath.Join(f.store.Root, filepath.FromSlash(first.StorageKey))); err != nil {
		t.Fatalf("proof file should be stored: %v", err)
	}

	rejected, err := f.market.ReviewProof(ctx, ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofRejected, Notes: "illegible"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Payment.Status != models.PaymentAwaitingConfirmation {
		t.Fatalf("payment must stay awaiting_confirmation, got %s", rejected.Payment.Status)
	}
	proof := rejected.Payment.CurrentProof()
	if proof.Status != models.ProofRejected || proof.ReviewNotes != "illegible" || proof.ReviewedAt == nil {
		t.Fatalf("unexpected reviewed proof: %+v", proof)
	}
	if proof.ReviewerID == nil || *proof.ReviewerID != f.admin.ID {
		t.Fatalf("reviewer not recorded: %+v", proof.ReviewerID)
	}
	if !rejected.Payment.Deadline.Equal(uploaded.Payment.Deadline) {
		t.Fatalf("rejection must not reset the deadline")
	}

	f.clock.Advance(time.Hour)
	again := f.uploadProof(t, order.ID, f.buyer.ID, "second.png")
	if again.Payment.Status != models.PaymentAwaitingConfirmation || again.Payment.ProofStatus() != models.ProofPending {
		t.Fatalf("after re-upload: payment=%s proof=%s", again.Payment.Status, again.Payment.ProofStatus())
	}
	if len(again.Payment.Proofs) != 2 {
		t.Fatalf("old proof must be kept, got %d proofs", len(again.Payment.Proofs))
	}
	if again.Payment.Proofs[0].SupersededAt == nil || again.Payment.Proofs[0].Status != models.ProofRejected {
		t.Fatalf("old proof should be superseded: %+v", again.Payment.Proofs[0])
	}
	if again.Payment.CurrentProof().ID == first.ID {
		t.Fatalf("current proof should be the newest upload")
	}
	if again.Payment.CurrentProof().Metadata["order_number"] != order.OrderNumber {
		t.Fatalf("storage metadata missing: %+v", again.Payment.CurrentProof().Metadata)
	}
}

// 承認を二度呼んでも paid_at は一度だけ
func TestApproveProofTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 18000).ID)
	f.uploadProof(t, order.ID, f.buyer.ID, "receipt.pdf")

	approved, err := f.market.ReviewProof(ctx, ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofApproved})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Payment.Status != models.PaymentPaid || approved.Payment.PaidAt == nil {
		t.Fatalf("unexpected payment: %+v", approved.Payment)
	}
	paidAt := *approved.Payment.PaidAt

	f.clock.Advance(2 * time.Hour)
	_, err = f.market.ReviewProof(ctx, ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofApproved})
	assertKind(t, err, apperr.KindConflict)

	reloaded := f.reload(t, order.ID)
	if reloaded.Payment.Status != models.PaymentPaid || !reloaded.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("paid_at changed: %v -> %v", paidAt, reloaded.Payment.PaidAt)
	}

	// 支払い済みなら再アップロードもできない
	_, err = f.market.UploadProof(ctx, order.ID, f.buyer.ID, proofFile("late.pdf"))
	assertKind(t, err, apperr.KindConflict)
}

func TestReviewProofRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 18000).ID)

	_, err := f.market.ReviewProof(ctx, ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofApproved})
	assertKind(t, err, apperr.KindConflict)

	f.uploadProof(t, order.ID, f.buyer.ID, "receipt.pdf")

	tests := []struct {
		name     string
		in       ReviewInput
		wantKind string
	}{
		{name: "not_admin", in: ReviewInput{OrderID: order.ID, ReviewerID: f.seller.ID, Decision: models.ProofApproved}, wantKind: apperr.KindUnauthorized},
		{name: "bad_decision", in: ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofPending}, wantKind: apperr.KindValidation},
		{name: "reject_without_notes", in: ReviewInput{OrderID: order.ID, ReviewerID: f.admin.ID, Decision: models.ProofRejected}, wantKind: apperr.KindValidation},
		{name: "missing_order", in: ReviewInput{OrderID: 9999, ReviewerID: f.admin.ID, Decision: models.ProofApproved}, wantKind: apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.market.ReviewProof(ctx, tt.in)
			assertKind(t, err, tt.wantKind)
		})
	}

	if got := f.reload(t, order.ID).Payment.ProofStatus(); got != models.ProofPending {
		t.Fatalf("failed reviews must not touch the proof, got %s", got)
	}
}

func TestUploadProofRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 18000).ID)

	_, err := f.market.UploadProof(ctx, order.ID, f.buyer2.ID, proofFile("x.pdf"))
	assertKind(t, err, apperr.KindUnauthorized)
	_, err = f.market.UploadProof(ctx, 9999, f.buyer.ID, proofFile("x.pdf"))
	assertKind(t, err, apperr.KindNotFound)

	f.uploadProof(t, order.ID, f.buyer.ID, "receipt.pdf")
	_, err = f.market.UploadProof(ctx, order.ID, f.buyer.ID, proofFile("again.pdf"))
	assertKind(t, err, apperr.KindConflict)

	// 期限切れ後のアップロード
	late := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 9000).ID)
	f.clock.Advance(72*time.Hour + time.Second)
	_, err = f.market.UploadProof(ctx, late.ID, f.buyer.ID, proofFile("late.pdf"))
	assertKind(t, err, apperr.KindConflict)

	// 失敗済みの支払い
	if _, err := f.market.MarkPaymentFailed(ctx, late.ID, ExpiredReason); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	_, err = f.market.UploadProof(ctx, late.ID, f.buyer.ID, proofFile("late.pdf"))
	assertKind(t, err, apperr.KindConflict)

	var proofs int64
	f.db.Model(&models.PaymentProof{}).Count(&proofs)
	if proofs != 1 {
		t.Fatalf("rejected uploads must not create proofs, got %d", proofs)
	}
}

func TestMarkPaymentFailedIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	bike := f.createBicycle(t, 18000)
	order := f.createOrder(t, f.buyer.ID, bike.ID)

	first, err := f.market.MarkPaymentFailed(ctx, order.ID, "manual")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if first.Payment.Status != models.PaymentFailed || first.Payment.FailedAt == nil || first.Status != models.OrderCancelled {
		t.Fatalf("unexpected state: order=%s payment=%+v", first.Status, first.Payment)
	}
	failedAt := *first.Payment.FailedAt

	f.clock.Advance(time.Hour)
	second, err := f.market.MarkPaymentFailed(ctx, order.ID, "again")
	if err != nil {
		t.Fatalf("second mark failed should be a no-op: %v", err)
	}
	if !second.Payment.FailedAt.Equal(failedAt) || second.Payment.FailureReason != "manual" {
		t.Fatalf("failed state changed: %+v", second.Payment)
	}
	if got := f.bicycleStatus(t, bike.ID); got != models.BicycleAvailable {
		t.Fatalf("bicycle should be relisted, got %s", got)
	}
}

func TestListAwaitingReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	waiting := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 18000).ID)
	rejected := f.createOrder(t, f.buyer.ID, f.createBicycle(t, 12000).ID)
	f.createOrder(t, f.buyer2.ID, f.createBicycle(t, 9000).ID)

	f.uploadProof(t, waiting.ID, f.buyer.ID, "a.pdf")
	f.uploadProof(t, rejected.ID, f.buyer.ID, "b.pdf")
	if _, err := f.market.ReviewProof(ctx, ReviewInput{OrderID: rejected.ID, ReviewerID: f.admin.ID, Decision: models.ProofRejected, Notes: "blurry"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	orders, err := f.market.ListAwaitingReview(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != waiting.ID {
		t.Fatalf("expected only the pending proof, got %+v", orders)
	}
	if orders[0].Buyer == nil || orders[0].Buyer.ID != f.buyer.ID {
		t.Fatalf("buyer should be preloaded")
	}

	url, err := f.market.ProofURL(ctx, *orders[0].Payment.CurrentProof())
	if err != nil || url == "" {
		t.Fatalf("proof url: %q %v", url, err)
	}
}
