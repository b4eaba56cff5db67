package policy_test

import (
	"context"
	"fmt"

	"github.com/devkit/devkit/pkg/optimizer"
	"github.com/devkit/devkit/pkg/policy"
)

func ExampleEngine_Advise() {
	eng, err := policy.NewEngine(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}

	input := optimizer.AdvisoryInput{
		Units: []optimizer.UnitHistory{
			{Unit: "node", Attempts: 1, Failures: 1, LastVersion: "20.11"},
		},
		Thresholds: optimizer.Thresholds{MinAttempts: 2},
	}

	msgs, err := eng.Advise(context.Background(), input)
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, msg := range msgs {
		fmt.Println(msg)
	}
	// Output:
	// Retry node@20.11: the last install failed
}
