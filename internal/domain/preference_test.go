package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPreference() UserPreference {
	return UserPreference{
		UserID:                1,
		DestinationPreference: DestinationsAll,
		AirlinePreference:     AirlinesAll,
		TravelClass:           TravelEconomy,
		MinDiscount:           20,
		NotificationFrequency: FrequencyDaily,
	}
}

func TestUserPreferenceValidate(t *testing.T) {
	require.NoError(t, validPreference().Validate())

	cases := map[string]func(p *UserPreference){
		"unknown destination preference": func(p *UserPreference) { p.DestinationPreference = "some" },
		"specific without destinations":  func(p *UserPreference) { p.DestinationPreference = DestinationsSpecific },
		"exclude without airlines":       func(p *UserPreference) { p.AirlinePreference = AirlinesExclude },
		"premium without cabins":         func(p *UserPreference) { p.TravelClass = TravelPremium },
		"negative discount":              func(p *UserPreference) { p.MinDiscount = -1 },
		"unknown frequency":              func(p *UserPreference) { p.NotificationFrequency = "hourly" },
		"bad origin code":                func(p *UserPreference) { p.OriginAirports = []string{"jfk"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPreference()
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDealQualityDowngradeFloor(t *testing.T) {
	assert.Equal(t, QualityGreat, QualityAmazing.Downgrade())
	assert.Equal(t, QualityGood, QualityGreat.Downgrade())
	assert.Equal(t, QualityGood, QualityGood.Downgrade())
}

func TestSubscriptionActive(t *testing.T) {
	assert.True(t, Subscription{Status: SubscriptionActive}.Active())
	assert.True(t, Subscription{Status: SubscriptionTrialing}.Active())
	assert.False(t, Subscription{Status: SubscriptionCanceled}.Active())
	assert.False(t, Subscription{Status: SubscriptionPastDue}.Active())
}
