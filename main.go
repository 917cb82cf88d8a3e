package transit

import (
	"fmt"
	"net"
	"os"
	"reflect"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/go-playground/validator.v9"
)

var log = logrus.WithField("prefix", "startup")

func init() {
	if os.Getenv("TRANSIT_VERBOSE") == "true" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func MustParseCommandLine(opts interface{}) {
	if err := ParseCommandLine(opts, os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(1)
	}
}

// ParseCommandLine parses the arguments into opts, validates the result and calls
// the Initialize method of every option group. Initialize methods can take other
// option groups as parameters, those are injected by type if they appear earlier
// in the options struct.
func ParseCommandLine(opts interface{}, args []string) error {
	if reflect.ValueOf(opts).Kind() != reflect.Ptr {
		return errors.New("options parameter must be pointer")
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	if err := newValidator().Struct(opts); err != nil {
		return errors.WithMessage(err, "validate options struct")
	}

	return initialize(reflect.ValueOf(opts).Elem())
}

func newValidator() *validator.Validate {
	v := validator.New()

	// validate host:port values
	_ = v.RegisterValidation("hostport", func(fl validator.FieldLevel) bool {
		value := fl.Field().Interface().(string)
		_, _, err := net.SplitHostPort(value)
		return err == nil
	})

	return v
}

func initialize(value reflect.Value) error {
	seen := make(map[reflect.Type]reflect.Value)

	for idx := 0; idx < value.NumField(); idx++ {
		fieldValue := value.Field(idx)
		if fieldValue.Kind() != reflect.Struct || !fieldValue.CanAddr() {
			continue
		}

		// we remember the values we've seen so we can inject those into
		// the Initialize() functions
		seen[fieldValue.Type()] = fieldValue
		seen[reflect.PointerTo(fieldValue.Type())] = fieldValue.Addr()

		init := findInitializerMethod(fieldValue)
		if !init.IsValid() {
			continue
		}

		var inputValues []reflect.Value

		initType := init.Type()
		for idx := 0; idx < initType.NumIn(); idx++ {
			inputValue := seen[initType.In(idx)]
			if !inputValue.IsValid() {
				return errors.Errorf("can not find value of type %s to inject into %s",
					initType.In(idx).String(), fieldValue.Type())
			}

			inputValues = append(inputValues, inputValue)
		}

		log.Debugf("Calling %s.Initialize()", fieldValue.Type().String())
		init.Call(inputValues)
	}

	return nil
}

func findInitializerMethod(v reflect.Value) reflect.Value {
	m := v.MethodByName("Initialize")
	if !m.IsValid() && v.CanAddr() {
		m = v.Addr().MethodByName("Initialize")
	}

	return m
}
