/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
)

var (
	ServiceNotFound = errors.New("service not found")
	logger          = logging.MustGetLogger("fsc.view.registry")
)

// ServiceProvider stores services and returns them by type
type ServiceProvider struct {
	services   []interface{}
	serviceMap map[reflect.Type]interface{}
	lock       sync.Mutex
}

func New() *ServiceProvider {
	return &ServiceProvider{
		services:   []interface{}{},
		serviceMap: map[reflect.Type]interface{}{},
	}
}

// GetService returns the first registered service assignable to the type of v.
// v can be a reflect.Type, a pointer to a struct, or a pointer to an interface.
func (sp *ServiceProvider) GetService(v interface{}) (interface{}, error) {
	sp.lock.Lock()
	defer sp.lock.Unlock()

	var typ reflect.Type
	switch t := v.(type) {
	case reflect.Type:
		typ = t
	default:
		typ = reflect.TypeOf(v)
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	if service, ok := sp.serviceMap[typ]; ok {
		return service, nil
	}
	for _, s := range sp.services {
		st := reflect.TypeOf(s)
		var match bool
		if typ.Kind() == reflect.Interface {
			match = st.Implements(typ)
		} else {
			match = st == typ || (st.Kind() == reflect.Ptr && st.Elem() == typ)
		}
		if match {
			sp.serviceMap[typ] = s
			return s, nil
		}
	}
	return nil, errors.Wrapf(ServiceNotFound, "service [%s/%s]", typ.PkgPath(), typ.Name())
}

func (sp *ServiceProvider) RegisterService(service interface{}) error {
	if service == nil {
		return errors.New("cannot register nil service")
	}
	sp.lock.Lock()
	defer sp.lock.Unlock()

	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("register service [%s]", getIdentifier(service))
	}
	sp.services = append(sp.services, service)
	return nil
}

func getIdentifier(v interface{}) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "/" + t.Name()
}
