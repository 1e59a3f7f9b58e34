package testutil

import (
	"fmt"

	"github.com/onsi/ginkgo"
)

// Byf is By with formatting. The message goes to the test output too,
// so notes from concurrent workers stay readable in order.
func Byf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ginkgo.By(msg)
	fmt.Fprintln(ginkgo.GinkgoWriter, msg)
}
