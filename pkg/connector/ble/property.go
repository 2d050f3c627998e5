package ble

import "strings"

// Property is the characteristic properties bitmask defined by the Core Specification
// (Vol 3, Part G, 3.3.1.1).
type Property uint8

const (
	PropertyBroadcast       Property = 0x01
	PropertyRead            Property = 0x02
	PropertyWriteNoResponse Property = 0x04
	PropertyWrite           Property = 0x08
	PropertyNotify          Property = 0x10
	PropertyIndicate        Property = 0x20
	PropertySignedWrite     Property = 0x40
	PropertyExtendedProps   Property = 0x80
)

var propertyNames = []struct {
	bit  Property
	name string
}{
	{PropertyBroadcast, "PROPERTY_BROADCAST"},
	{PropertyRead, "PROPERTY_READ"},
	{PropertyWriteNoResponse, "PROPERTY_WRITE_NO_RESPONSE"},
	{PropertyWrite, "PROPERTY_WRITE"},
	{PropertyNotify, "PROPERTY_NOTIFY"},
	{PropertyIndicate, "PROPERTY_INDICATE"},
	{PropertySignedWrite, "PROPERTY_SIGNED_WRITE"},
	{PropertyExtendedProps, "PROPERTY_EXTENDED_PROPS"},
}

// String joins the names of the set bits with "|", lowest bit first.
func (p Property) String() string {
	var names []string
	for _, entry := range propertyNames {
		if p&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Permission is the attribute permission bitmask as exposed by Android's GATT API.
type Permission uint16

const (
	PermissionRead               Permission = 0x01
	PermissionReadEncrypted      Permission = 0x02
	PermissionReadEncryptedMITM  Permission = 0x04
	PermissionWrite              Permission = 0x10
	PermissionWriteEncrypted     Permission = 0x20
	PermissionWriteEncryptedMITM Permission = 0x40
	PermissionWriteSigned        Permission = 0x80
	PermissionWriteSignedMITM    Permission = 0x100
)

var permissionNames = []struct {
	bit  Permission
	name string
}{
	{PermissionRead, "PERMISSION_READ"},
	{PermissionReadEncrypted, "PERMISSION_READ_ENCRYPTED"},
	{PermissionReadEncryptedMITM, "PERMISSION_READ_ENCRYPTED_MITM"},
	{PermissionWrite, "PERMISSION_WRITE"},
	{PermissionWriteEncrypted, "PERMISSION_WRITE_ENCRYPTED"},
	{PermissionWriteEncryptedMITM, "PERMISSION_WRITE_ENCRYPTED_MITM"},
	{PermissionWriteSigned, "PERMISSION_WRITE_SIGNED"},
	{PermissionWriteSignedMITM, "PERMISSION_WRITE_SIGNED_MITM"},
}

func (p Permission) String() string {
	var names []string
	for _, entry := range permissionNames {
		if p&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}
