package builtin

import (
	"reflect"
	"testing"

	"github.com/felixgeelhaar/multicall/domain/driver"
)

func TestEntries(t *testing.T) {
	t.Parallel()

	reg, err := driver.NewRegistry(Entries(Config{InProcess: true})...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"cc", "ld", "printenv"}) {
		t.Errorf("Names() = %v", got)
	}

	for _, name := range []string{"x86_64-linux-gnu-cc-14", "ld.exe", "/bin/printenv"} {
		if _, ok := reg.Resolve(name); !ok {
			t.Errorf("Resolve(%q) found nothing", name)
		}
	}
}
