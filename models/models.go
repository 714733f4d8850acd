package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User ユーザー (出品者・購入者・管理者)
type User struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FirebaseUID string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"firebase_uid"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username    string    `gorm:"type:varchar(100)" json:"username"`
	IconURL     string    `gorm:"type:text" json:"icon_url"`
	Bio         string    `gorm:"type:text" json:"bio"`
	Role        string    `gorm:"type:varchar(20);default:'user';not null" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 売上の振込先。オファー承諾前に揃っている必要がある
	BankName          string `gorm:"type:varchar(100)" json:"bank_name"`
	BankCode          string `gorm:"type:varchar(10)" json:"bank_code"`
	BankBranch        string `gorm:"type:varchar(100)" json:"bank_branch"`
	BankAccountName   string `gorm:"type:varchar(100)" json:"bank_account_name"`
	BankAccountNumber string `gorm:"type:varchar(50)" json:"bank_account_number"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// BankAccountComplete 出品者として入金を受け取れるか
func (u User) BankAccountComplete() bool {
	return u.BankName != "" && u.BankCode != "" && u.BankBranch != "" &&
		u.BankAccountName != "" && u.BankAccountNumber != ""
}

type BicycleStatus string

const (
	BicycleDraft     BicycleStatus = "draft"
	BicyclePending   BicycleStatus = "pending" // 管理者の審査待ち
	BicycleAvailable BicycleStatus = "available"
	BicycleSold      BicycleStatus = "sold"
	BicycleArchived  BicycleStatus = "archived"
)

// Bicycle 出品された自転車
type Bicycle struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID       uint64          `gorm:"not null;index" json:"seller_id"`
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	ImageURL       string          `gorm:"type:text" json:"image_url"` // JSON 配列の文字列
	ConditionID    *uint           `json:"condition_id"`
	BrandID        *uint           `json:"brand_id"`
	BicycleModelID *uint           `json:"bicycle_model_id"`
	TransmissionID *uint           `json:"transmission_id"`
	FrameSize      string          `gorm:"type:varchar(20)" json:"frame_size"`
	Year           int             `json:"year"`
	Status         BicycleStatus   `gorm:"type:varchar(20);default:'draft';not null;index" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Relations
	Seller       *User         `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Brand        *Brand        `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
	BicycleModel *BicycleModel `gorm:"foreignKey:BicycleModelID" json:"bicycle_model,omitempty"`
	Transmission *Transmission `gorm:"foreignKey:TransmissionID" json:"transmission,omitempty"`
	Condition    *Condition    `gorm:"foreignKey:ConditionID" json:"condition,omitempty"`
}

type OfferStatus string

const (
	OfferNone     OfferStatus = "none"
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// Message 自転車ごとのやり取り。IsOffer のときは出価を兼ねる
type Message struct {
	ID          uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID    uint64              `gorm:"not null;index" json:"sender_id"`
	RecipientID uint64              `gorm:"not null;index" json:"recipient_id"`
	BicycleID   uint64              `gorm:"not null;index" json:"bicycle_id"`
	Content     string              `gorm:"type:text;not null" json:"content"`
	IsOffer     bool                `gorm:"default:false;not null" json:"is_offer"`
	OfferAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"offer_amount"`
	OfferStatus OfferStatus         `gorm:"type:varchar(20);default:'none';not null" json:"offer_status"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`

	// 待回應の出価だけが値を持つ ("<sender>:<bicycle>")。NULL 同士は衝突しない
	PendingOfferKey *string `gorm:"type:varchar(64);uniqueIndex" json:"-"`

	// Relations
	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

type ShippingMethod string

const (
	ShippingSelfPickup       ShippingMethod = "self_pickup"
	ShippingAssistedDelivery ShippingMethod = "assisted_delivery"
)

// Order 注文。支払い状態は Payment が持つ
type Order struct {
	ID                  uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber         string              `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_number"`
	BuyerID             uint64              `gorm:"not null;index" json:"buyer_id"`
	SellerID            uint64              `gorm:"not null;index" json:"seller_id"`
	BicycleID           uint64              `gorm:"not null;index" json:"bicycle_id"`
	OfferID             *uint64             `gorm:"index" json:"offer_id,omitempty"`
	TotalPrice          decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"total_price"`
	ShippingMethod      ShippingMethod      `gorm:"type:varchar(30);not null" json:"shipping_method"`
	ShippingDistance    decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"shipping_distance"`
	ShippingCost        decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"shipping_cost"`
	Status              OrderStatus         `gorm:"type:varchar(20);default:'pending';not null;index" json:"status"`
	PaymentInstructions string              `gorm:"type:text" json:"payment_instructions"`
	CompanyAccountInfo  string              `gorm:"type:text" json:"company_account_info"`
	CancelledAt         *time.Time          `json:"cancelled_at,omitempty"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	// Relations
	Payment *Payment `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
	Bicycle *Bicycle `gorm:"foreignKey:BicycleID" json:"bicycle,omitempty"`
	Buyer   *User    `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
}

// AmountDue 買い手が振り込む金額 (商品代金 + 配送料)
func (o Order) AmountDue() decimal.Decimal {
	return o.TotalPrice.Add(o.ShippingCost)
}

type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentFailed               PaymentStatus = "failed"
	PaymentRefunded             PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

type PaymentMethod string

const PaymentBankTransfer PaymentMethod = "bank_transfer"

// Payment 注文に 1:1 で紐づく支払い。期限・証明書審査の状態はここだけが持つ
type Payment struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       uint64          `gorm:"not null;uniqueIndex" json:"order_id"`
	Method        PaymentMethod   `gorm:"type:varchar(30);not null" json:"method"`
	Status        PaymentStatus   `gorm:"type:varchar(30);default:'pending';not null;index:idx_payments_status_expires,priority:1" json:"status"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Deadline      time.Time       `gorm:"not null" json:"deadline"`
	ExpiresAt     time.Time       `gorm:"not null;index:idx_payments_status_expires,priority:2" json:"expires_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	FailureReason string          `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	RefundReason  string          `gorm:"type:varchar(255)" json:"refund_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Proofs []PaymentProof `gorm:"foreignKey:PaymentID" json:"proofs,omitempty"`
}

// CurrentProof 差し替えられていない最新の証明書。Proofs が読み込み済みである前提
func (p Payment) CurrentProof() *PaymentProof {
	var current *PaymentProof
	for i := range p.Proofs {
		proof := &p.Proofs[i]
		if proof.SupersededAt != nil {
			continue
		}
		if current == nil || proof.ID > current.ID {
			current = proof
		}
	}
	return current
}

func (p Payment) ProofStatus() ProofStatus {
	if current := p.CurrentProof(); current != nil {
		return current.Status
	}
	return ProofNone
}

type ProofStatus string

const (
	ProofNone     ProofStatus = "none"
	ProofPending  ProofStatus = "pending"
	ProofApproved ProofStatus = "approved"
	ProofRejected ProofStatus = "rejected"
)

// PaymentProof 振込明細のアップロード。審査結果は型付きの列で持つ
type PaymentProof struct {
	ID           uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID    uint64            `gorm:"not null;index" json:"payment_id"`
	StorageKey   string            `gorm:"type:varchar(512);not null" json:"-"`
	URL          string            `gorm:"type:text" json:"url"`
	FileName     string            `gorm:"type:varchar(255)" json:"file_name"`
	ContentType  string            `gorm:"type:varchar(100)" json:"content_type"`
	Size         int64             `json:"size"`
	Status       ProofStatus       `gorm:"type:varchar(20);default:'pending';not null" json:"status"`
	ReviewedAt   *time.Time        `json:"reviewed_at,omitempty"`
	ReviewerID   *uint64           `json:"reviewer_id,omitempty"`
	ReviewNotes  string            `gorm:"type:text" json:"review_notes,omitempty"`
	SupersededAt *time.Time        `json:"superseded_at,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"` // ストレージ側の付加情報のみ
	CreatedAt    time.Time         `json:"created_at"`
}

// Brand ブランド
type Brand struct {
	ID     uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Models []BicycleModel `gorm:"foreignKey:BrandID" json:"models,omitempty"`
}

// BicycleModel ブランド配下の車種
type BicycleModel struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BrandID uint   `gorm:"not null;index" json:"brand_id"`
	Name    string `gorm:"type:varchar(100);not null" json:"name"`
}

// Transmission 変速機
type Transmission struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Speeds int    `json:"speeds"`
}

// Condition 車体の状態
type Condition struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Rank int    `gorm:"column:rank" json:"rank"` // 状態の順序付け用
}

// All AutoMigrate の対象
func All() []interface{} {
	return []interface{}{
		&User{}, &Brand{}, &BicycleModel{}, &Transmission{}, &Condition{},
		&Bicycle{}, &Message{}, &Order{}, &Payment{}, &PaymentProof{},
	}
}
