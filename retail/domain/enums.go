package domain

type OrderStatus string

const (
	OrderPending           OrderStatus = "pending"
	OrderPaid              OrderStatus = "paid"
	OrderFulfilled         OrderStatus = "fulfilled"
	OrderCancelled         OrderStatus = "cancelled"
	OrderBackorder         OrderStatus = "backorder"
	OrderRefunded          OrderStatus = "refunded"
	OrderPartiallyRefunded OrderStatus = "partially_refunded"
	OrderRefundRequested   OrderStatus = "refund_requested"
)

var OrderStatuses = []OrderStatus{
	OrderPending, OrderPaid, OrderFulfilled, OrderCancelled,
	OrderBackorder, OrderRefunded, OrderPartiallyRefunded, OrderRefundRequested,
}

func (s OrderStatus) Valid() bool { return contains(OrderStatuses, s) }

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentCaptured          PaymentStatus = "captured"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentDisputed          PaymentStatus = "disputed"
	PaymentVoided            PaymentStatus = "voided"
	PaymentCompleted         PaymentStatus = "completed"
)

var PaymentStatuses = []PaymentStatus{
	PaymentPending, PaymentAuthorized, PaymentCaptured, PaymentFailed, PaymentRefunded,
	PaymentPartiallyRefunded, PaymentDisputed, PaymentVoided, PaymentCompleted,
}

func (s PaymentStatus) Valid() bool { return contains(PaymentStatuses, s) }

// Refundable reports whether money has been collected for the payment.
func (s PaymentStatus) Refundable() bool {
	switch s {
	case PaymentCaptured, PaymentCompleted, PaymentPartiallyRefunded, PaymentDisputed:
		return true
	default:
		return false
	}
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundApproved  RefundStatus = "approved"
	RefundProcessed RefundStatus = "processed"
	RefundDenied    RefundStatus = "denied"
)

var RefundStatuses = []RefundStatus{RefundPending, RefundApproved, RefundProcessed, RefundDenied}

func (s RefundStatus) Valid() bool { return contains(RefundStatuses, s) }

// Counts reports whether the refund reduces the refundable balance of its payment.
func (s RefundStatus) Counts() bool { return s != RefundDenied }

type RefundReason string

const (
	ReasonCustomerRemorse RefundReason = "customer_remorse"
	ReasonDefective       RefundReason = "defective"
	ReasonIncompatible    RefundReason = "incompatible"
	ReasonShippingIssue   RefundReason = "shipping_issue"
	ReasonOther           RefundReason = "other"
)

var RefundReasons = []RefundReason{
	ReasonCustomerRemorse, ReasonDefective, ReasonIncompatible, ReasonShippingIssue, ReasonOther,
}

func (r RefundReason) Valid() bool { return contains(RefundReasons, r) }

type TicketStatus string

const (
	TicketNew             TicketStatus = "new"
	TicketOpen            TicketStatus = "open"
	TicketPendingCustomer TicketStatus = "pending_customer"
	TicketResolved        TicketStatus = "resolved"
	TicketClosed          TicketStatus = "closed"
)

var TicketStatuses = []TicketStatus{TicketNew, TicketOpen, TicketPendingCustomer, TicketResolved, TicketClosed}

func (s TicketStatus) Valid() bool { return contains(TicketStatuses, s) }

// Finished reports whether the ticket no longer needs work.
func (s TicketStatus) Finished() bool { return s == TicketResolved || s == TicketClosed }

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityNormal TicketPriority = "normal"
	PriorityHigh   TicketPriority = "high"
)

var TicketPriorities = []TicketPriority{PriorityLow, PriorityNormal, PriorityHigh}

func (p TicketPriority) Valid() bool { return contains(TicketPriorities, p) }

type TicketType string

const (
	TicketReturn          TicketType = "return"
	TicketTroubleshooting TicketType = "troubleshooting"
	TicketRecommendation  TicketType = "recommendation"
	TicketOrderIssue      TicketType = "order_issue"
	TicketShipping        TicketType = "shipping"
	TicketBilling         TicketType = "billing"
	TicketOther           TicketType = "other"
)

var TicketTypes = []TicketType{
	TicketReturn, TicketTroubleshooting, TicketRecommendation, TicketOrderIssue,
	TicketShipping, TicketBilling, TicketOther,
}

func (t TicketType) Valid() bool { return contains(TicketTypes, t) }

type EscalationType string

const (
	EscalationTechnical              EscalationType = "technical"
	EscalationPolicyException        EscalationType = "policy_exception"
	EscalationProductSpecialist      EscalationType = "product_specialist"
	EscalationInsufficientPermission EscalationType = "insufficient_permission"
)

var EscalationTypes = []EscalationType{
	EscalationTechnical, EscalationPolicyException, EscalationProductSpecialist, EscalationInsufficientPermission,
}

func (t EscalationType) Valid() bool { return contains(EscalationTypes, t) }

type Destination string

const (
	DestOperations        Destination = "operations"
	DestOrderProcessing   Destination = "order_processing"
	DestEngineering       Destination = "engineering"
	DestHelpDesk          Destination = "help_desk"
	DestITSystems         Destination = "it_systems"
	DestProductManagement Destination = "product_management"
	DestFinance           Destination = "finance"
	DestHR                Destination = "hr"
	DestSupport           Destination = "support"
)

var Destinations = []Destination{
	DestOperations, DestOrderProcessing, DestEngineering, DestHelpDesk, DestITSystems,
	DestProductManagement, DestFinance, DestHR, DestSupport,
}

func (d Destination) Valid() bool { return contains(Destinations, d) }

type ResolutionOutcome string

const (
	OutcomeRefundApproved       ResolutionOutcome = "refund_approved"
	OutcomeReplacementProvided  ResolutionOutcome = "replacement_provided"
	OutcomeTroubleshootingSteps ResolutionOutcome = "troubleshooting_steps"
	OutcomeOrderUpdated         ResolutionOutcome = "order_updated"
	OutcomeNoAction             ResolutionOutcome = "no_action"
	OutcomeEscalated            ResolutionOutcome = "escalated"
)

var ResolutionOutcomes = []ResolutionOutcome{
	OutcomeRefundApproved, OutcomeReplacementProvided, OutcomeTroubleshootingSteps,
	OutcomeOrderUpdated, OutcomeNoAction, OutcomeEscalated,
}

func (o ResolutionOutcome) Valid() bool { return contains(ResolutionOutcomes, o) }

type LoyaltyTier string

const (
	TierNone     LoyaltyTier = "none"
	TierSilver   LoyaltyTier = "silver"
	TierGold     LoyaltyTier = "gold"
	TierPlatinum LoyaltyTier = "platinum"
)

var LoyaltyTiers = []LoyaltyTier{TierNone, TierSilver, TierGold, TierPlatinum}

func (t LoyaltyTier) Valid() bool { return contains(LoyaltyTiers, t) }

type ProductCategory string

const (
	CategoryCPU         ProductCategory = "cpu"
	CategoryMotherboard ProductCategory = "motherboard"
	CategoryGPU         ProductCategory = "gpu"
	CategoryMemory      ProductCategory = "memory"
	CategoryStorage     ProductCategory = "storage"
	CategoryPSU         ProductCategory = "psu"
	CategoryCase        ProductCategory = "case"
	CategoryCooling     ProductCategory = "cooling"
	CategoryPrebuilt    ProductCategory = "prebuilt"
	CategoryWorkstation ProductCategory = "workstation"
	CategoryMonitor     ProductCategory = "monitor"
	CategoryKeyboard    ProductCategory = "keyboard"
	CategoryMouse       ProductCategory = "mouse"
	CategoryHeadset     ProductCategory = "headset"
	CategoryNetworking  ProductCategory = "networking"
	CategoryCable       ProductCategory = "cable"
	CategoryAccessory   ProductCategory = "accessory"
	CategoryBundle      ProductCategory = "bundle"
)

var ProductCategories = []ProductCategory{
	CategoryCPU, CategoryMotherboard, CategoryGPU, CategoryMemory, CategoryStorage, CategoryPSU,
	CategoryCase, CategoryCooling, CategoryPrebuilt, CategoryWorkstation, CategoryMonitor,
	CategoryKeyboard, CategoryMouse, CategoryHeadset, CategoryNetworking, CategoryCable,
	CategoryAccessory, CategoryBundle,
}

func (c ProductCategory) Valid() bool { return contains(ProductCategories, c) }

// CompleteSystem reports whether the category is sold as an assembled machine.
func (c ProductCategory) CompleteSystem() bool {
	return c == CategoryPrebuilt || c == CategoryWorkstation
}

type ShippingService string

const (
	ShippingStandard  ShippingService = "standard"
	ShippingExpress   ShippingService = "express"
	ShippingOvernight ShippingService = "overnight"
	ShippingTwoDay    ShippingService = "two_day"
	ShippingFree      ShippingService = "free"
)

var ShippingServices = []ShippingService{ShippingStandard, ShippingExpress, ShippingOvernight, ShippingTwoDay, ShippingFree}

func (s ShippingService) Valid() bool { return contains(ShippingServices, s) }

type WarrantyClaimStatus string

const (
	ClaimPendingReview WarrantyClaimStatus = "pending_review"
	ClaimAccepted      WarrantyClaimStatus = "accepted"
	ClaimDenied        WarrantyClaimStatus = "denied"
)

var WarrantyClaimStatuses = []WarrantyClaimStatus{ClaimPendingReview, ClaimAccepted, ClaimDenied}

func (s WarrantyClaimStatus) Valid() bool { return contains(WarrantyClaimStatuses, s) }

type WarrantyClaimReason string

const (
	ClaimDefect      WarrantyClaimReason = "defect"
	ClaimWearAndTear WarrantyClaimReason = "wear_and_tear"
	ClaimMalfunction WarrantyClaimReason = "malfunction"
)

var WarrantyClaimReasons = []WarrantyClaimReason{ClaimDefect, ClaimWearAndTear, ClaimMalfunction}

func (r WarrantyClaimReason) Valid() bool { return contains(WarrantyClaimReasons, r) }

type DenialReason string

const (
	DenialProductMisuse            DenialReason = "product_misuse"
	DenialUncoveredDamage          DenialReason = "uncovered_damage"
	DenialOutOfWarranty            DenialReason = "out_of_warranty"
	DenialUnauthorizedModification DenialReason = "unauthorized_modification"
	DenialInsufficientEvidence     DenialReason = "insufficient_evidence"
)

var DenialReasons = []DenialReason{
	DenialProductMisuse, DenialUncoveredDamage, DenialOutOfWarranty,
	DenialUnauthorizedModification, DenialInsufficientEvidence,
}

func (r DenialReason) Valid() bool { return contains(DenialReasons, r) }

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
