package model

import "testing"

func TestCanAdvanceTo(t *testing.T) {
    cases := []struct {
        from, to IntentStatus
        ok       bool
    }{
        {IntentCreated, IntentApproved, true},
        {IntentCreated, IntentCaptured, true},
        {IntentApproved, IntentCaptured, true},
        {IntentApproved, IntentDeclined, true},
        {IntentApproved, IntentApproved, true}, // duplicate delivery
        {IntentApproved, IntentCreated, false},
        {IntentCaptured, IntentDeclined, false},
        {IntentCaptured, IntentApproved, false},
        {IntentDeclined, IntentCaptured, false},
        {IntentFailed, IntentApproved, false},
        {IntentStatus("bogus"), IntentApproved, false},
    }
    for _, c := range cases {
        if got := c.from.CanAdvanceTo(c.to); got != c.ok {
            t.Fatalf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
        }
    }
}

func TestPackageWeightG(t *testing.T) {
    o := Order{Items: []OrderItem{
        {Quantity: 2, WeightG: 250},
        {Quantity: 1}, // no weight, falls back
    }}
    if got := o.PackageWeightG(1000); got != 1500 {
        t.Fatalf("weight: %d", got)
    }
    // no usable weights at all
    if got := (Order{}).PackageWeightG(1000); got != 1000 {
        t.Fatalf("fallback weight: %d", got)
    }
    // zero quantity treated as one
    o = Order{Items: []OrderItem{{WeightG: 300}}}
    if got := o.PackageWeightG(1000); got != 300 {
        t.Fatalf("zero quantity: %d", got)
    }
}
