package services

import (
	"context"
	"testing"

	"github.com/Kousuke-irie/bicycle-market/apperr"
	"github.com/shopspring/decimal"
)

func TestMessagingThreads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	bike := f.createBicycle(t, 18000)

	_, err := f.market.SendMessage(ctx, MessageInput{SenderID: f.buyer.ID, BicycleID: bike.ID, Content: "   "})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.market.SendMessage(ctx, MessageInput{SenderID: f.buyer.ID, BicycleID: bike.ID, RecipientID: f.buyer2.ID, Content: "hi"})
	assertKind(t, err, apperr.KindUnauthorized)

	if _, err := f.market.SendMessage(ctx, MessageInput{SenderID: f.buyer.ID, BicycleID: bike.ID, Content: "還在嗎？"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.market.SendMessage(ctx, MessageInput{SenderID: f.seller.ID, BicycleID: bike.ID, RecipientID: f.buyer.ID, Content: "還在"}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if _, err := f.market.CreateOffer(ctx, OfferInput{SenderID: f.buyer.ID, BicycleID: bike.ID, Amount: decimal.NewFromInt(15000)}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.market.SendMessage(ctx, MessageInput{SenderID: f.buyer2.ID, BicycleID: bike.ID, Content: "可以試騎嗎"}); err != nil {
		t.Fatalf("send other: %v", err)
	}

	conv, err := f.market.ListConversation(ctx, f.seller.ID, bike.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv) != 3 || !conv[2].IsOffer {
		t.Fatalf("expected 3 messages ending with the offer, got %+v", conv)
	}

	threads, err := f.market.ListThreads(ctx, f.seller.ID)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 || threads[0].PartnerID != f.buyer2.ID || threads[1].PartnerID != f.buyer.ID {
		t.Fatalf("unexpected threads: %+v", threads)
	}
	if !threads[1].LastMessage.IsOffer {
		t.Fatalf("last message of buyer thread should be the offer")
	}
}
