package filecheck

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFileCheckGinkgo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "File-Check Pipeline Suite")
}
