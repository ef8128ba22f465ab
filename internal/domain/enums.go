package domain

// CabinClass identifies the cabin a fare was observed for.
type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

// Valid reports whether c is one of the known cabin classes.
func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

// Label is the display form used in emails and tables.
func (c CabinClass) Label() string {
	switch c {
	case CabinEconomy:
		return "Economy"
	case CabinPremiumEconomy:
		return "Premium Economy"
	case CabinBusiness:
		return "Business"
	case CabinFirst:
		return "First Class"
	default:
		return string(c)
	}
}

// Volatility buckets the coefficient of variation of a price history.
type Volatility string

const (
	VolatilityLow     Volatility = "low"
	VolatilityMedium  Volatility = "medium"
	VolatilityHigh    Volatility = "high"
	VolatilityUnknown Volatility = "unknown"
)

// Trend describes the drift between the first and last month of a history window.
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// DealQuality is the tier assigned to a qualifying discount.
type DealQuality string

const (
	QualityGood    DealQuality = "good"
	QualityGreat   DealQuality = "great"
	QualityAmazing DealQuality = "amazing"
)

// Downgrade moves the quality one tier down. Good is the floor.
func (q DealQuality) Downgrade() DealQuality {
	switch q {
	case QualityAmazing:
		return QualityGreat
	case QualityGreat:
		return QualityGood
	default:
		return q
	}
}

// Title capitalises the tier for display.
func (q DealQuality) Title() string {
	switch q {
	case QualityGood:
		return "Good"
	case QualityGreat:
		return "Great"
	case QualityAmazing:
		return "Amazing"
	}
	return string(q)
}

// DestinationPreference selects which destinations a user wants deals for.
type DestinationPreference string

const (
	DestinationsAll      DestinationPreference = "all"
	DestinationsSpecific DestinationPreference = "specific"
)

// AirlinePreference selects which carriers a user accepts.
type AirlinePreference string

const (
	AirlinesAll      AirlinePreference = "all"
	AirlinesSpecific AirlinePreference = "specific"
	AirlinesExclude  AirlinePreference = "exclude"
)

// TravelClass is the coarse cabin choice stored on a preference.
type TravelClass string

const (
	TravelEconomy TravelClass = "economy"
	TravelPremium TravelClass = "premium"
)

// NotificationFrequency controls instant alerts versus the weekly digest.
type NotificationFrequency string

const (
	FrequencyDaily  NotificationFrequency = "daily"
	FrequencyWeekly NotificationFrequency = "weekly"
)

// NotificationStatus tracks dispatch state of a queued notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Valid reports whether s is a known status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationFailed:
		return true
	}
	return false
}

// SubscriptionStatus mirrors the billing collaborator's subscription state.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// PlanType is the billing plan tier.
type PlanType string

const (
	PlanFree        PlanType = "free"
	PlanPremium     PlanType = "premium"
	PlanPremiumPlus PlanType = "premium_plus"
)
